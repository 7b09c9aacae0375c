package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/you/wachat-extract/internal/assemble"
	"github.com/you/wachat-extract/internal/config"
	"github.com/you/wachat-extract/internal/extract"
	"github.com/you/wachat-extract/internal/harvester"
	"github.com/you/wachat-extract/internal/metrics"
	"github.com/you/wachat-extract/internal/sink"
)

// pipeline holds what survives between runs in watch mode.
type pipeline struct {
	cfg     config.Config
	rules   extract.Rules
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// runOnce resolves the inputs, opens fresh sinks and processes every file.
// CSV output is only renamed into place and the SQLite run transaction only
// committed when the run succeeds.
func (p *pipeline) runOnce(ctx context.Context, args []string) (harvester.Result, error) {
	if p.logger == nil {
		p.logger = slog.Default()
	}
	inputs, err := resolveInputs(args, p.cfg.Input.Glob)
	if err != nil {
		return harvester.Result{}, err
	}
	if len(inputs) == 0 {
		return harvester.Result{}, errors.Errorf("no inputs matching %q", p.cfg.Input.Glob)
	}

	enricher, err := extract.NewEnricher(p.rules)
	if err != nil {
		return harvester.Result{}, errors.Wrap(err, "compile rules")
	}

	runID := uuid.NewString()
	started := time.Now()
	log.Printf("extractor: run %s starting inputs=%d sinks=%v", runID, len(inputs), p.cfg.Sinks)

	var (
		sinks    []sink.Named
		csvOut   *sink.CSVSink
		sqlite   *sink.SQLiteSink
		buffered *sink.BufferedWriter
	)
	abort := func() {
		if buffered != nil {
			_ = buffered.Close()
		}
		if csvOut != nil {
			csvOut.Abort()
		}
		if sqlite != nil {
			if err := sqlite.Rollback(); err != nil {
				log.Printf("extractor: sqlite: %v", err)
			}
			if err := sqlite.Close(); err != nil {
				log.Printf("extractor: closing sqlite: %v", err)
			}
		}
	}

	if p.cfg.HasSink(config.SinkCSV) {
		csvOut, err = sink.OpenCSV(p.cfg.Sink.CSV.Path)
		if err != nil {
			return harvester.Result{}, err
		}
		sinks = append(sinks, sink.Named{Name: config.SinkCSV, Writer: csvOut})
	}

	if p.cfg.HasSink(config.SinkSQLite) {
		sqlite, err = sink.OpenSQLite(p.cfg.Sink.SQLite.Path, sink.SQLiteOptions{
			RunID:  runID,
			Tuning: p.cfg.Sink.SQLite.Tuning,
		})
		if err != nil {
			abort()
			return harvester.Result{}, err
		}
		if err := sqlite.Ping(); err != nil {
			abort()
			return harvester.Result{}, errors.Wrap(err, "ping sqlite")
		}
		if err := migrateSQLite(ctx, sqlite.RawDB()); err != nil {
			abort()
			return harvester.Result{}, errors.Wrap(err, "sqlite migrate")
		}
		if err := sqlite.EnsureIndexes(ctx); err != nil {
			abort()
			return harvester.Result{}, err
		}
		if err := sqlite.Begin(ctx); err != nil {
			abort()
			return harvester.Result{}, err
		}
		var w sink.Writer = sqlite
		if p.cfg.Batch() > 1 || p.cfg.FlushInterval() > 0 {
			buffered = sink.NewBufferedWriter(sqlite, sink.BufferedOptions{
				BatchSize:     p.cfg.Batch(),
				FlushInterval: p.cfg.FlushInterval(),
			})
			w = buffered
		}
		sinks = append(sinks, sink.Named{Name: config.SinkSQLite, Writer: w})
	}

	if len(sinks) == 0 {
		return harvester.Result{}, errors.Errorf("no supported sinks in %v (supported: %s, %s)", p.cfg.Sinks, config.SinkCSV, config.SinkSQLite)
	}

	fan := sink.NewFanout(func(name string, err error) {
		p.metrics.IncSinkWriteErrors(name)
		p.logger.Error("extractor: sink write failed", "sink", name, "err", err)
	}, sinks...)
	ids := assemble.NewCounter(p.cfg.Extract.IDPrefix, 1)
	asm := assemble.New(ids, fan)
	h := harvester.New(enricher, asm, p.metrics, harvester.Options{
		RunID:               runID,
		Workers:             p.cfg.Workers(),
		StrictUTF8:          p.cfg.Input.StrictUTF8,
		DebugDrops:          p.cfg.Log.DebugDrops,
		DropSummaryInterval: p.cfg.DropSummaryInterval(),
		Logger:              p.logger.With("run_id", runID),
	})

	res, runErr := h.Run(ctx, inputs)
	if runErr == nil && buffered != nil {
		if err := buffered.Close(); err != nil {
			p.metrics.IncSinkWriteErrors(config.SinkSQLite)
			runErr = errors.Wrap(err, "flush sqlite batch")
		}
	}
	if runErr != nil {
		abort()
		return res, runErr
	}

	if csvOut != nil {
		if err := csvOut.Close(); err != nil {
			p.metrics.IncSinkWriteErrors(config.SinkCSV)
			abort()
			return res, err
		}
		log.Printf("extractor: wrote %d rows to %s", csvOut.Rows(), csvOut.Path())
	}
	if sqlite != nil {
		pruned, err := sqlite.Commit(ctx)
		if err != nil {
			p.metrics.IncSinkWriteErrors(config.SinkSQLite)
			_ = sqlite.Close()
			return res, err
		}
		if pruned > 0 {
			log.Printf("extractor: sqlite: pruned %d rows from earlier runs", pruned)
		}
		if err := sqlite.Close(); err != nil {
			return res, errors.Wrap(err, "close sqlite")
		}
	}

	st := res.Stats
	log.Printf("extractor: run %s done in %s files=%d failed=%d records=%d ids=%d with_phone=%d with_status=%d with_region=%d unique_senders=%d",
		runID, time.Since(started).Round(time.Millisecond),
		st.Files, st.FailedFiles, st.Records, ids.Issued(), st.WithPhone, st.WithStatus, st.WithRegion, st.UniqueSenders)

	if err := p.metrics.WriteTextfile(p.cfg.Metrics.File); err != nil {
		log.Printf("extractor: %v", err)
	}
	return res, nil
}
