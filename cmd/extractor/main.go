package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/you/wachat-extract/internal/config"
	"github.com/you/wachat-extract/internal/extract"
	"github.com/you/wachat-extract/internal/harvester"
	httpadmin "github.com/you/wachat-extract/internal/http"
	"github.com/you/wachat-extract/internal/httpapi"
	"github.com/you/wachat-extract/internal/metrics"
	"github.com/you/wachat-extract/internal/version"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag bool
		outPath     string
		dbPath      string
		glob        string
		workers     int
		prefix      string
		rulesFile   string
		metricsFile string
		metricsAddr string
		strictUTF8  bool
		logLevel    string
		watch       bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&outPath, "out", "whatsapp_chats.csv", "Path of the CSV output file")
	flag.StringVar(&dbPath, "sqlite", "", "Also mirror records into this SQLite database")
	flag.StringVar(&glob, "glob", "_chat*.txt", "File pattern used when an argument is a directory")
	flag.IntVar(&workers, "workers", 1, "Number of files parsed concurrently")
	flag.StringVar(&prefix, "prefix", "PRO", "Prefix of generated record identifiers")
	flag.StringVar(&rulesFile, "rules", "", "YAML file overriding keyword, region and phone rules")
	flag.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after each run")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve status and Prometheus metrics on this address in watch mode (e.g., :9464)")
	flag.BoolVar(&strictUTF8, "strict-utf8", true, "Fail a file on invalid UTF-8 instead of replacing bad bytes")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flag.BoolVar(&watch, "watch", false, "Re-run whenever an input directory changes")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [file|dir|glob ...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"extractor version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()

	addSink := func(name string) {
		if !cfg.HasSink(name) {
			cfg.Sinks = append(cfg.Sinks, name)
		}
	}

	if overrides["out"] {
		cfg.Sink.CSV.Path = strings.TrimSpace(outPath)
		addSink(config.SinkCSV)
	}
	if overrides["sqlite"] {
		cfg.Sink.SQLite.Path = strings.TrimSpace(dbPath)
		addSink(config.SinkSQLite)
	}
	if overrides["glob"] {
		cfg.Input.Glob = strings.TrimSpace(glob)
	}
	if overrides["workers"] {
		cfg.Input.Workers = workers
	}
	if overrides["prefix"] {
		cfg.Extract.IDPrefix = strings.TrimSpace(prefix)
	}
	if overrides["rules"] {
		cfg.Extract.RulesFile = strings.TrimSpace(rulesFile)
	}
	if overrides["metrics-file"] {
		cfg.Metrics.File = strings.TrimSpace(metricsFile)
	}
	if overrides["metrics-addr"] {
		cfg.Metrics.Addr = strings.TrimSpace(metricsAddr)
	}
	if overrides["strict-utf8"] {
		cfg.Input.StrictUTF8 = strictUTF8
	}
	if overrides["log-level"] {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(logLevel))
	}
	if overrides["watch"] {
		cfg.Watch = watch
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	log.Printf("%s", cfg.SummaryJSON())

	rules, err := extract.LoadRules(cfg.Extract.RulesFile)
	if err != nil {
		log.Fatalf("extractor: rules: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("extractor: received %s, shutting down", sig)
		cancel()
	}()

	p := &pipeline{cfg: cfg, rules: rules, metrics: metrics.New(), logger: logger}
	args := flag.Args()

	var api *httpapi.Server
	if cfg.Watch && cfg.Metrics.Addr != "" {
		build := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
		if version.BuildTime != "" && version.BuildTime != "unknown" {
			if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
				build.BuiltAt = t
			}
		}
		api = httpapi.New(httpapi.Options{
			Addr:            cfg.Metrics.Addr,
			Build:           build,
			ConfigSnapshot:  json.RawMessage(cfg.SummaryJSON()),
			Metrics:         p.metrics.Handler(),
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			EnableAccessLog: cfg.LogLevel() <= slog.LevelDebug,
			Logger:          logger,
		})
	}

	runAndReport := func(runCtx context.Context) (string, error) {
		started := time.Now()
		res, err := p.runOnce(runCtx, args)
		if err != nil {
			log.Printf("extractor: run failed: %v", err)
		}
		if api != nil {
			st := httpapi.RunStatus{
				RunID:         res.RunID,
				Finished:      time.Now().UTC(),
				Duration:      time.Since(started).Round(time.Millisecond).String(),
				Files:         res.Stats.Files,
				FailedFiles:   res.Stats.FailedFiles,
				Records:       res.Stats.Records,
				WithPhone:     res.Stats.WithPhone,
				UniqueSenders: res.Stats.UniqueSenders,
			}
			if err != nil {
				st.Error = err.Error()
			}
			api.ReportRun(st)
		}
		return res.RunID, err
	}
	runs := &serialRunner{ctx: ctx, run: runAndReport}
	if api != nil {
		httpadmin.New(runs).Register(api.Mux())
		go func() {
			if err := api.Start(); err != nil {
				log.Printf("extractor: status api: %v", err)
			}
		}()
		log.Printf("extractor: status api ready on %s", cfg.Metrics.Addr)
	}

	_, runErr := runs.Rerun(ctx)
	if !cfg.Watch {
		if runErr != nil {
			os.Exit(1)
		}
		return
	}

	dirs := watchDirs(args)
	log.Printf("extractor: watching %v", dirs)
	explicit := map[string]bool{}
	for _, arg := range args {
		if abs, err := filepath.Abs(arg); err == nil {
			explicit[abs] = true
		}
	}
	outputs := map[string]bool{}
	for _, path := range []string{cfg.Sink.CSV.Path, cfg.Sink.SQLite.Path, cfg.Metrics.File} {
		if path != "" {
			if abs, err := filepath.Abs(path); err == nil {
				outputs[abs] = true
			}
		}
	}
	err = harvester.Watch(ctx, dirs, harvester.WatchOptions{
		Logger: logger,
		Match: func(name string) bool {
			abs, err := filepath.Abs(name)
			if err != nil {
				return false
			}
			if outputs[abs] || strings.HasPrefix(filepath.Base(name), ".") {
				return false
			}
			if explicit[abs] {
				return true
			}
			ok, _ := filepath.Match(cfg.Input.Glob, filepath.Base(name))
			return ok
		},
	}, func(runCtx context.Context) {
		_, _ = runs.Rerun(runCtx)
	})
	if err != nil {
		log.Printf("extractor: watch: %v", err)
	}

	if api != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Printf("extractor: status api shutdown: %v", err)
		}
		cancelShutdown()
	}
	log.Printf("extractor: shutdown complete")
}

// serialRunner lets the watcher and the admin endpoint share one pipeline
// without overlapping runs. Runs are bound to the process context, not the caller's.
type serialRunner struct {
	mu  sync.Mutex
	ctx context.Context
	run func(context.Context) (string, error)
}

func (s *serialRunner) Rerun(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(s.ctx)
}
