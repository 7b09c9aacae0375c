// Package harvester drives a run: it reads each transcript, rebuilds and
// enriches its records, and emits them through the assembler in input order.
package harvester

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/you/wachat-extract/internal/assemble"
	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/extract"
	"github.com/you/wachat-extract/internal/ingesttrace"
	"github.com/you/wachat-extract/internal/metrics"
	"github.com/you/wachat-extract/internal/transcript"
)

const maxLineBytes = 16 << 20

const (
	FileOK     = "ok"
	FileFailed = "failed"
)

// ErrNoInputs is returned when a run is started without any files.
var ErrNoInputs = errors.New("no input files")

// ErrAllInputsFailed is returned when no input file could be read.
var ErrAllInputsFailed = errors.New("every input file failed")

// Options tunes a Harvester. Workers below 1 means one file at a time.
type Options struct {
	RunID               string
	Workers             int
	StrictUTF8          bool
	DebugDrops          bool
	DropSummaryInterval time.Duration
	Logger              *slog.Logger
}

// FileResult describes one input file.
type FileResult struct {
	Path     string
	Records  int
	Dropped  int
	Duration time.Duration
	Err      error
}

// Stats is the end-of-run summary.
type Stats struct {
	Files         int
	FailedFiles   int
	Records       int
	WithPhone     int
	WithStatus    int
	WithRegion    int
	UniqueSenders int
}

// Result is what Run returns: per-file outcomes in input order plus totals.
type Result struct {
	RunID string
	Files []FileResult
	Stats Stats
}

// Harvester owns the per-run pipeline. Enricher and metrics are shared by
// all workers; the assembler serializes emission.
type Harvester struct {
	enricher *extract.Enricher
	asm      *assemble.Assembler
	metrics  *metrics.Metrics
	opts     Options
	logger   *slog.Logger
	drops    *dropLogger
}

// New wires a Harvester. A nil logger falls back to slog.Default.
func New(enricher *extract.Enricher, asm *assemble.Assembler, m *metrics.Metrics, opts Options) *Harvester {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Harvester{
		enricher: enricher,
		asm:      asm,
		metrics:  m,
		opts:     opts,
		logger:   logger,
		drops:    newDropLogger(logger, time.Now(), opts.DebugDrops, opts.DropSummaryInterval),
	}
}

// pending is a parsed, enriched record waiting for its identifier.
type pending struct {
	rec   core.Record
	trace *ingesttrace.MessageTrace
}

type fileOutput struct {
	records []pending
	dropped int
}

// Run processes paths in lexical order. Per-file failures are recorded in
// the result and do not stop the run; sink failures do.
func (h *Harvester) Run(ctx context.Context, paths []string) (Result, error) {
	if len(paths) == 0 {
		return Result{}, ErrNoInputs
	}
	files := append([]string(nil), paths...)
	sort.Strings(files)

	var res Result
	var err error
	if h.opts.Workers > 1 && len(files) > 1 {
		res, err = h.runParallel(ctx, files)
	} else {
		res, err = h.runSequential(ctx, files)
	}
	res.RunID = h.opts.RunID
	h.drops.flush(time.Now())
	if err != nil {
		return res, err
	}
	h.metrics.MarkRun(time.Now())
	if res.Stats.FailedFiles == len(files) {
		return res, ErrAllInputsFailed
	}
	return res, nil
}

func (h *Harvester) runSequential(ctx context.Context, files []string) (Result, error) {
	res := Result{Files: make([]FileResult, len(files))}
	senders := make(map[string]struct{})
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := time.Now()
		out, err := h.parseFile(ctx, path)
		res.Files[i] = h.finishFile(path, out, err, time.Since(start))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return res, err
			}
			continue
		}
		if err := h.emitAll(out.records, &res.Stats, senders); err != nil {
			return res, err
		}
	}
	h.summarize(&res, senders)
	return res, nil
}

// runParallel parses files concurrently, then emits them in file order so
// identifiers match a sequential run.
func (h *Harvester) runParallel(ctx context.Context, files []string) (Result, error) {
	res := Result{Files: make([]FileResult, len(files))}
	outputs := make([]fileOutput, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			start := time.Now()
			out, err := h.parseFile(gctx, path)
			outputs[i], errs[i] = out, err
			res.Files[i] = h.finishFile(path, out, err, time.Since(start))
			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	senders := make(map[string]struct{})
	for i := range files {
		if errs[i] != nil {
			continue
		}
		if err := h.emitAll(outputs[i].records, &res.Stats, senders); err != nil {
			return res, err
		}
	}
	h.summarize(&res, senders)
	return res, nil
}

func (h *Harvester) finishFile(path string, out fileOutput, err error, dur time.Duration) FileResult {
	fr := FileResult{Path: path, Records: len(out.records), Dropped: out.dropped, Duration: dur, Err: err}
	if err != nil {
		h.metrics.ObserveFile(FileFailed, dur)
		h.logger.Error("harvester: file failed", "file", path, "err", err)
		fr.Records = 0
		return fr
	}
	h.metrics.ObserveFile(FileOK, dur)
	h.logger.Info("harvester: file parsed", "file", path, "records", fr.Records, "dropped", fr.Dropped, "duration", dur)
	return fr
}

func (h *Harvester) emitAll(records []pending, stats *Stats, senders map[string]struct{}) error {
	for _, p := range records {
		rec, err := h.asm.Emit(p.rec, p.trace)
		if err != nil {
			return err
		}
		h.metrics.IncRecords()
		p.trace.LogTrace(h.logger, "harvester: record "+rec.UniqueID)

		stats.Records++
		if rec.SenderPhone != "" || rec.SenderPhone2 != "" {
			stats.WithPhone++
		}
		if rec.Status != "" {
			stats.WithStatus++
		}
		if rec.Region != "" {
			stats.WithRegion++
		}
		senders[rec.SenderName+"\x1f"+rec.SenderPhone] = struct{}{}
	}
	return nil
}

func (h *Harvester) summarize(res *Result, senders map[string]struct{}) {
	res.Stats.Files = len(res.Files)
	for _, f := range res.Files {
		if f.Err != nil {
			res.Stats.FailedFiles++
		}
	}
	res.Stats.UniqueSenders = len(senders)
}

// parseFile reads one transcript to completion. A decode or read error fails
// the whole file so partial output never reaches the sinks.
func (h *Harvester) parseFile(ctx context.Context, path string) (fileOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileOutput{}, errors.Wrap(err, "open transcript")
	}
	defer f.Close()
	return h.parse(ctx, path, f)
}

func (h *Harvester) parse(ctx context.Context, source string, r io.Reader) (fileOutput, error) {
	var out fileOutput
	parser := transcript.NewParser(source)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNumber := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		lineNumber++
		raw := strings.TrimSuffix(sc.Text(), "\r")
		if !utf8.ValidString(raw) {
			if h.opts.StrictUTF8 {
				return out, errors.Errorf("%s:%d: invalid UTF-8", source, lineNumber)
			}
			raw = strings.ToValidUTF8(raw, "\uFFFD")
		}

		rec, done, kind := parser.Feed(lineNumber, raw)
		h.metrics.IncLine(string(kind))
		if kind == transcript.LinePreamble {
			out.dropped++
			h.drops.note(time.Now(), DropPreamble, source, lineNumber, raw)
		}
		if done {
			out.records = append(out.records, h.finalize(rec))
		}
	}
	if err := sc.Err(); err != nil {
		return out, errors.Wrapf(err, "read %s", source)
	}
	if rec, ok := parser.Flush(); ok {
		out.records = append(out.records, h.finalize(rec))
	}
	return out, nil
}

// finalize enriches a completed record and records what the extractors found.
func (h *Harvester) finalize(rec core.Record) pending {
	trace := ingesttrace.NewTraceFromRecord(rec.FileSource, rec.LineNumber, rec.SenderName, rec.MessageBackup)
	headerPhone := rec.SenderPhone != ""

	rep := h.enricher.Enrich(&rec)
	trace.IncCounter(ingesttrace.StageEnriched)

	switch {
	case headerPhone:
		h.metrics.IncPhone("primary", "header")
	case rec.SenderPhone != "":
		h.metrics.IncPhone("primary", extract.StrategyPrimary)
	}
	if rep.Secondary.Strategy != "" {
		h.metrics.IncPhone("secondary", rep.Secondary.Strategy)
	}
	for _, reason := range sortedKeys(rep.Secondary.Rejected) {
		n := rep.Secondary.Rejected[reason]
		for i := 0; i < n; i++ {
			trace.IncCounter(ingesttrace.StageRejected(reason))
		}
		h.metrics.AddPhoneRejections(reason, n)
		h.drops.noteN(time.Now(), ingesttrace.StageRejectedPrefix+reason, rec.FileSource, rec.LineNumber, rec.MessageBackup, n)
	}
	h.metrics.AddTags("status", len(rep.Status))
	h.metrics.AddTags("region", len(rep.Regions))

	return pending{rec: rec, trace: trace}
}
