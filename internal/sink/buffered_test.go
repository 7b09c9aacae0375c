package sink

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/ingesttrace"
)

type recordingWriter struct {
	mu        sync.Mutex
	records   []core.Record
	failAfter int
	calls     int
}

func (r *recordingWriter) Write(rec core.Record, _ *ingesttrace.MessageTrace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failAfter > 0 && r.calls >= r.failAfter {
		return fmt.Errorf("boom")
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingWriter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type batchRecorder struct {
	recordingWriter
	batches []int
}

func (b *batchRecorder) WriteBatch(entries []Entry) error {
	b.mu.Lock()
	b.batches = append(b.batches, len(entries))
	b.mu.Unlock()
	for _, e := range entries {
		if err := b.Write(e.Record, e.Trace); err != nil {
			return err
		}
	}
	return nil
}

func TestBufferedWriterBatchFlush(t *testing.T) {
	base := &recordingWriter{}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 2, FlushInterval: time.Hour})
	defer func() {
		if err := bw.Close(); err != nil {
			t.Fatalf("close error: %v", err)
		}
	}()

	if err := bw.Write(core.Record{UniqueID: "PRO1"}, nil); err != nil {
		t.Fatalf("write1: %v", err)
	}
	if base.Count() != 0 {
		t.Fatalf("expected no flush yet")
	}
	if err := bw.Write(core.Record{UniqueID: "PRO2"}, nil); err != nil {
		t.Fatalf("write2: %v", err)
	}
	if base.Count() != 2 {
		t.Fatalf("expected batch flush, got %d", base.Count())
	}
}

func TestBufferedWriterFlushInterval(t *testing.T) {
	base := &recordingWriter{}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 10, FlushInterval: 20 * time.Millisecond})
	defer func() {
		if err := bw.Close(); err != nil {
			t.Fatalf("close error: %v", err)
		}
	}()

	if err := bw.Write(core.Record{UniqueID: "interval"}, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if base.Count() != 1 {
		t.Fatalf("expected timer flush, got %d", base.Count())
	}
}

func TestBufferedWriterErrorPropagation(t *testing.T) {
	base := &recordingWriter{failAfter: 1}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 1, FlushInterval: 0})
	defer func() {
		_ = bw.Close()
	}()

	if err := bw.Write(core.Record{UniqueID: "err"}, nil); err == nil {
		t.Fatalf("expected error from underlying writer")
	}
}

func TestBufferedWriterUsesBatchWriter(t *testing.T) {
	base := &batchRecorder{}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 3})
	for i := 1; i <= 4; i++ {
		if err := bw.Write(core.Record{UniqueID: fmt.Sprintf("PRO%d", i)}, nil); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(base.batches) != 2 || base.batches[0] != 3 || base.batches[1] != 1 {
		t.Fatalf("batches = %v", base.batches)
	}
	if base.records[3].UniqueID != "PRO4" {
		t.Fatalf("order lost: %+v", base.records)
	}
}

func TestBufferedWriterRejectsAfterClose(t *testing.T) {
	bw := NewBufferedWriter(&recordingWriter{}, BufferedOptions{})
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := bw.Write(core.Record{}, nil); err == nil {
		t.Fatalf("write after close succeeded")
	}
}
