// Package httpapi serves the status endpoints of a long-running extractor:
// liveness, build and config info, the outcome of the last run and metrics.
package httpapi

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RunStatus is the outcome of one extraction run.
type RunStatus struct {
	RunID         string    `json:"run_id"`
	Finished      time.Time `json:"finished"`
	Duration      string    `json:"duration"`
	Files         int       `json:"files"`
	FailedFiles   int       `json:"failed_files"`
	Records       int       `json:"records"`
	WithPhone     int       `json:"with_phone"`
	UniqueSenders int       `json:"unique_senders"`
	Error         string    `json:"error,omitempty"`
}

// Options configures the status server.
type Options struct {
	Addr           string
	Build          BuildInfo
	ConfigSnapshot json.RawMessage
	// Metrics is mounted on /metrics when set. It negotiates its own encoding.
	Metrics         http.Handler
	RateLimitRPS    int
	RateLimitBurst  int
	EnableAccessLog bool
	Logger          *slog.Logger
}

// Server serves the status routes plus anything registered on Mux.
type Server struct {
	httpServer *http.Server
	opts       Options
	clients    *clientLimits
	logger     *slog.Logger
	mux        *http.ServeMux
	handler    http.Handler

	mu   sync.Mutex
	last *RunStatus
}

const metricsPath = "/metrics"

// New builds the server. Nothing listens until Start.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		opts:    opts,
		clients: newClientLimits(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/info", srv.handleInfo)
	mux.HandleFunc("/runs/last", srv.handleLastRun)
	if opts.Metrics != nil {
		mux.Handle(metricsPath, opts.Metrics)
	}
	srv.mux = mux
	srv.handler = srv.wrap(mux)

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Mux lets other packages register extra routes before Start.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Handler exposes the wrapped mux.
func (s *Server) Handler() http.Handler { return s.handler }

// ReportRun records the outcome of the latest run. Rate-limit state of
// clients that stayed quiet for the whole run is dropped.
func (s *Server) ReportRun(st RunStatus) {
	s.mu.Lock()
	s.last = &st
	s.mu.Unlock()
	s.clients.sweep(time.Now())
}

func (s *Server) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)
		sw := &statusWriter{ResponseWriter: w}

		switch {
		case !s.clients.allow(ip, start):
			http.Error(sw, "rate limited", http.StatusTooManyRequests)
		case s.compress(r):
			sw.gz = gzip.NewWriter(w)
			next.ServeHTTP(sw, r)
			if sw.code == 0 {
				sw.WriteHeader(http.StatusOK)
			}
			_ = sw.gz.Close()
		default:
			next.ServeHTTP(sw, r)
		}

		if s.opts.EnableAccessLog {
			s.logger.Debug("http: access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status(),
				"bytes", sw.n,
				"duration", time.Since(start),
				"ip", ip,
			)
		}
	})
}

func (s *Server) compress(r *http.Request) bool {
	if s.opts.Metrics != nil && r.URL.Path == metricsPath {
		return false
	}
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// statusWriter records the response code and uncompressed size, and
// compresses the body when gz is set.
type statusWriter struct {
	http.ResponseWriter
	gz   *gzip.Writer
	code int
	n    int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	if w.gz != nil {
		w.Header().Del("Content-Length")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.WriteHeader(http.StatusOK)
	}
	var (
		n   int
		err error
	)
	if w.gz != nil {
		n, err = w.gz.Write(b)
	} else {
		n, err = w.ResponseWriter.Write(b)
	}
	w.n += int64(n)
	return n, err
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

// clientLimits keeps one token bucket per client address. A nil
// *clientLimits allows everything.
type clientLimits struct {
	rate  rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// maxClients bounds the table between runs.
const maxClients = 1024

func newClientLimits(rps, burst int) *clientLimits {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &clientLimits{
		rate:      rate.Limit(rps),
		burst:     burst,
		buckets:   make(map[string]*clientBucket),
		lastSweep: time.Now(),
	}
}

func (c *clientLimits) allow(ip string, now time.Time) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[ip]
	if !ok {
		if len(c.buckets) >= maxClients {
			c.sweepLocked(now)
		}
		b = &clientBucket{limiter: rate.NewLimiter(c.rate, c.burst)}
		c.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep forgets clients not seen since the previous sweep.
func (c *clientLimits) sweep(now time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
}

func (c *clientLimits) sweepLocked(now time.Time) {
	for ip, b := range c.buckets {
		if b.lastSeen.Before(c.lastSweep) {
			delete(c.buckets, ip)
		}
	}
	c.lastSweep = now
}

// clientIP is the peer address. The status server is reached directly, so
// forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleLastRun(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		http.Error(w, "no run finished yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) Start() error {
	s.logger.Info("http: status api listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
