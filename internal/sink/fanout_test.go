package sink

import (
	"testing"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/ingesttrace"
)

func TestFanoutWritesEverySinkAndCountsTrace(t *testing.T) {
	a, b := &recordingWriter{}, &recordingWriter{}
	f := NewFanout(nil, Named{Name: "a", Writer: a}, Named{Name: "b", Writer: b})
	trace := ingesttrace.NewTraceFromRecord("f.txt", 1, "A", "x")
	if err := f.Write(core.Record{UniqueID: "PRO1"}, trace); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if a.Count() != 1 || b.Count() != 1 {
		t.Fatalf("counts = %d/%d", a.Count(), b.Count())
	}
	if trace.Count(ingesttrace.StageWritten) != 1 {
		t.Fatalf("written stage not counted")
	}
}

func TestFanoutReportsFailingSink(t *testing.T) {
	var failed string
	good, bad := &recordingWriter{}, &recordingWriter{failAfter: 1}
	f := NewFanout(func(name string, _ error) { failed = name },
		Named{Name: "csv", Writer: good}, Named{Name: "sqlite", Writer: bad})
	if err := f.Write(core.Record{UniqueID: "PRO1"}, nil); err == nil {
		t.Fatalf("expected error")
	}
	if failed != "sqlite" {
		t.Fatalf("failed sink = %q", failed)
	}
}
