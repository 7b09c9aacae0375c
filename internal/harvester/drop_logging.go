package harvester

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	dropSummaryInterval = 10 * time.Second
	dropSampleMaxRunes  = 64

	DropPreamble = "preamble"
)

// digitRunRe masks anything long enough to be a phone number in logged samples.
var digitRunRe = regexp.MustCompile(`[0-9\x{0660}-\x{0669}\x{06F0}-\x{06F9}]{6,}`)

type dropReasonSummary struct {
	total        int
	byFile       map[string]int
	sampleByFile map[string]string
}

// dropLogger aggregates dropped lines and rejected phone candidates and emits
// one summary line per reason per interval.
type dropLogger struct {
	logger   *slog.Logger
	verbose  bool
	interval time.Duration
	sampler  *rate.Sometimes

	mu       sync.Mutex
	nextEmit time.Time
	reasons  map[string]*dropReasonSummary
}

func newDropLogger(logger *slog.Logger, now time.Time, verbose bool, interval time.Duration) *dropLogger {
	if interval <= 0 {
		interval = dropSummaryInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &dropLogger{
		logger:   logger,
		verbose:  verbose,
		interval: interval,
		sampler:  &rate.Sometimes{First: 20, Interval: time.Second},
		nextEmit: now.Add(interval),
		reasons:  make(map[string]*dropReasonSummary),
	}
}

func (d *dropLogger) note(now time.Time, reason, file string, line int, raw string) {
	d.noteN(now, reason, file, line, raw, 1)
}

func (d *dropLogger) noteN(now time.Time, reason, file string, line int, raw string, n int) {
	if d == nil || n <= 0 {
		return
	}
	file = filepath.Base(file)
	sample := sanitizeAndTruncate(raw, dropSampleMaxRunes)
	if d.verbose {
		d.sampler.Do(func() {
			d.logger.Debug("harvester: dropped",
				"reason", reason,
				"file", file,
				"line", line,
				"sample", sample,
			)
		})
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry := d.reasons[reason]
	if entry == nil {
		entry = &dropReasonSummary{
			byFile:       make(map[string]int),
			sampleByFile: make(map[string]string),
		}
		d.reasons[reason] = entry
	}
	entry.total += n
	entry.byFile[file] += n
	if _, ok := entry.sampleByFile[file]; !ok {
		entry.sampleByFile[file] = sample
	}

	if !now.Before(d.nextEmit) {
		d.flushLocked(now)
	}
}

func (d *dropLogger) flush(now time.Time) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked(now)
}

func (d *dropLogger) flushLocked(now time.Time) {
	d.nextEmit = now.Add(d.interval)
	if len(d.reasons) == 0 {
		return
	}
	for _, reason := range sortedKeys(d.reasons) {
		rs := d.reasons[reason]
		if rs == nil || rs.total == 0 {
			continue
		}
		d.logger.Info("harvester: dropped_"+reason,
			"total", rs.total,
			"files", formatFileCounts(rs.byFile),
			"samples", formatFileSamples(rs.sampleByFile),
		)
	}
	clear(d.reasons)
}

func sanitizeAndTruncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	s = digitRunRe.ReplaceAllString(s, "[NUMBER]")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func formatFileCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(counts))
	for _, f := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s:%d", f, counts[f]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func formatFileSamples(samples map[string]string) string {
	if len(samples) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(samples))
	for _, f := range sortedKeys(samples) {
		parts = append(parts, f+":'"+samples[f]+"'")
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
