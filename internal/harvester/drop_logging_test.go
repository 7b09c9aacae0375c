package harvester

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSanitizeAndTruncateMasksNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "collapses whitespace", in: "  Messages   to\tthis group ", max: 64, want: "Messages to this group"},
		{name: "masks western digits", in: "call 01012345678 now", max: 64, want: "call [NUMBER] now"},
		{name: "masks arabic-indic digits", in: "رقم ٠١٠١٢٣٤٥", max: 64, want: "رقم [NUMBER]"},
		{name: "short numbers kept", in: "3 rooms 120 m", max: 64, want: "3 rooms 120 m"},
		{name: "truncates by rune", in: "مرحبا بكم جميعا", max: 8, want: "مرحبا..."},
		{name: "empty", in: "   ", max: 10, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeAndTruncate(tt.in, tt.max); got != tt.want {
				t.Fatalf("sanitizeAndTruncate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDropLoggerSummarizesPerInterval(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	start := time.Unix(1700000000, 0)
	d := newDropLogger(logger, start, false, time.Minute)

	d.note(start, DropPreamble, "/in/_chat.txt", 1, "Messages and calls are end-to-end encrypted.")
	d.note(start.Add(time.Second), DropPreamble, "/in/_chat.txt", 2, "another line")
	d.noteN(start.Add(2*time.Second), "rejected_prefix", "/in/_chat2.txt", 7, "0131234567", 2)
	if buf.Len() != 0 {
		t.Fatalf("summary emitted before interval: %s", buf.String())
	}

	d.note(start.Add(time.Minute), DropPreamble, "/in/_chat2.txt", 1, "x")
	out := buf.String()
	if !strings.Contains(out, "harvester: dropped_preamble") || !strings.Contains(out, "total=3") {
		t.Fatalf("missing preamble summary: %s", out)
	}
	if !strings.Contains(out, "_chat.txt:2") || !strings.Contains(out, "_chat2.txt:1") {
		t.Fatalf("missing per-file counts: %s", out)
	}
	if !strings.Contains(out, "dropped_rejected_prefix") || !strings.Contains(out, "[NUMBER]") {
		t.Fatalf("missing rejection summary: %s", out)
	}

	buf.Reset()
	d.flush(start.Add(2 * time.Minute))
	if buf.Len() != 0 {
		t.Fatalf("flush after reset logged: %s", buf.String())
	}
}

func TestDropLoggerNilSafe(t *testing.T) {
	var d *dropLogger
	d.note(time.Now(), DropPreamble, "f", 1, "x")
	d.flush(time.Now())
}
