package httpapi

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHealthzAndInfo(t *testing.T) {
	srv := New(Options{
		Build:          BuildInfo{Version: "1.2.3", Revision: "abc", BuiltAt: time.Date(2025, 6, 10, 5, 0, 0, 0, time.UTC)},
		ConfigSnapshot: json.RawMessage(`{"sinks":["csv"]}`),
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	var info map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info["version"] != "1.2.3" || info["built_at"] != "2025-06-10T05:00:00Z" {
		t.Fatalf("unexpected info: %v", info)
	}
	if cfg, ok := info["config"].(map[string]any); !ok || cfg["sinks"] == nil {
		t.Fatalf("config snapshot missing: %v", info)
	}
}

func TestLastRun(t *testing.T) {
	srv := New(Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/last", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %d", rec.Code)
	}

	srv.ReportRun(RunStatus{RunID: "run-1", Files: 2, Records: 10})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/last", nil))
	var got RunStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.Records != 10 {
		t.Fatalf("unexpected run: %+v", got)
	}
}

func TestGzipNegotiation(t *testing.T) {
	srv := New(Options{})
	srv.ReportRun(RunStatus{RunID: "run-1"})

	req := httptest.NewRequest(http.MethodGet, "/runs/last", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers %v", rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if !strings.Contains(string(body), "run-1") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestRateLimit(t *testing.T) {
	srv := New(Options{RateLimitRPS: 1, RateLimitBurst: 1})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
}

func TestMetricsMount(t *testing.T) {
	srv := New(Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("wachat_records_total 1\n"))
	})})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "wachat_records_total") {
		t.Fatalf("metrics not mounted: %q", rec.Body.String())
	}
}

func TestMetricsNotCompressed(t *testing.T) {
	srv := New(Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("wachat_records_total 1\n"))
	})})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatalf("metrics compressed twice: %v", rec.Header())
	}
	if rec.Body.String() != "wachat_records_total 1\n" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestGzipErrorResponse(t *testing.T) {
	srv := New(Options{})
	req := httptest.NewRequest(http.MethodGet, "/runs/last", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound || rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("status %d headers %v", rec.Code, rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, _ := io.ReadAll(zr)
	if !strings.Contains(string(body), "no run finished yet") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestClientLimitsSweepFollowsRuns(t *testing.T) {
	t0 := time.Date(2025, 6, 10, 5, 0, 0, 0, time.UTC)
	c := newClientLimits(1, 1)
	c.lastSweep = t0

	if !c.allow("192.0.2.1", t0.Add(time.Second)) {
		t.Fatalf("first request refused")
	}
	if c.allow("192.0.2.1", t0.Add(time.Second)) {
		t.Fatalf("burst of one allowed a second request")
	}
	c.sweep(t0.Add(2 * time.Second))
	if len(c.buckets) != 1 {
		t.Fatalf("client seen during the run was dropped")
	}
	c.sweep(t0.Add(3 * time.Second))
	if len(c.buckets) != 0 {
		t.Fatalf("idle client kept: %d buckets", len(c.buckets))
	}

	var none *clientLimits
	if !none.allow("192.0.2.1", t0) {
		t.Fatalf("nil limits refused a request")
	}
	none.sweep(t0)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:5555"
	if got := clientIP(req); got != "10.0.0.5" {
		t.Fatalf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "192.0.2.1")
	if got := clientIP(req); got != "10.0.0.5" {
		t.Fatalf("forwarded header trusted: %q", got)
	}
}
