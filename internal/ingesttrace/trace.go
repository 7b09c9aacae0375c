package ingesttrace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"unicode/utf8"
)

// Stage represents a pipeline stage a record passes through.
type Stage string

const (
	StageParsed   Stage = "parsed"
	StageEnriched Stage = "enriched"
	StageWritten  Stage = "written"

	StageRejectedPrefix = "rejected_"
)

// snippetRunes bounds the message excerpt carried in a trace.
const snippetRunes = 40

// StageRejected creates a Stage for a phone candidate rejected for reason.
func StageRejected(reason string) Stage {
	return Stage(fmt.Sprintf("%s%s", StageRejectedPrefix, reason))
}

// MessageTrace captures provenance and stage counters for one record.
type MessageTrace struct {
	File    string
	Line    int
	Sender  string
	Snippet string
	TraceID string

	mu       sync.Mutex
	counters map[Stage]int64
}

// NewTraceFromRecord constructs a trace from the record's provenance and seeds
// the parsed counter. The trace id is stable across runs over the same input.
func NewTraceFromRecord(file string, line int, sender, message string) *MessageTrace {
	snippet := truncate(message, snippetRunes)
	trace := &MessageTrace{
		File:     file,
		Line:     line,
		Sender:   sender,
		Snippet:  snippet,
		TraceID:  computeTraceID(file, line, sender, snippet),
		counters: make(map[Stage]int64),
	}

	trace.counters[StageParsed] = 1
	return trace
}

// IncCounter increments the counter for the provided stage and returns the updated value.
func (t *MessageTrace) IncCounter(stage Stage) int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters[stage]++
	return t.counters[stage]
}

// Count returns the current value for stage.
func (t *MessageTrace) Count(stage Stage) int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters[stage]
}

// LogTrace logs the trace metadata and counters at debug level.
func (t *MessageTrace) LogTrace(logger *slog.Logger, msg string) {
	if t == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug(msg,
		"trace_id", t.TraceID,
		"file", t.File,
		"line", t.Line,
		"sender", t.Sender,
		"snippet", t.Snippet,
		"counters", t.snapshotCounters(),
	)
}

func (t *MessageTrace) snapshotCounters() map[Stage]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	copy := make(map[Stage]int64, len(t.counters))
	for stage, count := range t.counters {
		copy[stage] = count
	}

	return copy
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func computeTraceID(file string, line int, sender, snippet string) string {
	digest := sha256.Sum256([]byte(file + "\x1f" + strconv.Itoa(line) + "\x1f" + sender + "\x1f" + snippet))
	return hex.EncodeToString(digest[:])
}
