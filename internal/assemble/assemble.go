// Package assemble stamps finalized records with run-unique identifiers and
// hands them to the output sinks.
package assemble

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/ingesttrace"
	"github.com/you/wachat-extract/internal/sink"
)

// DefaultPrefix is prepended to every sequence number.
const DefaultPrefix = "PRO"

// Sequence hands out identifiers. One Sequence serves a whole run.
type Sequence interface {
	Next() string
}

// Counter is a Sequence producing <prefix><n> with n counting up from start.
type Counter struct {
	mu     sync.Mutex
	prefix string
	start  int
	next   int
}

// NewCounter returns a counter. A start below 1 begins at 1.
func NewCounter(prefix string, start int) *Counter {
	if start < 1 {
		start = 1
	}
	return &Counter{prefix: prefix, start: start, next: start}
}

func (c *Counter) Next() string {
	c.mu.Lock()
	n := c.next
	c.next++
	c.mu.Unlock()
	return c.prefix + strconv.Itoa(n)
}

// Issued reports how many identifiers have been handed out.
func (c *Counter) Issued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next - c.start
}

// Assembler assigns identifiers in emission order and forwards records.
type Assembler struct {
	seq Sequence
	out sink.Writer

	mu      sync.Mutex
	emitted int
}

func New(seq Sequence, out sink.Writer) *Assembler {
	return &Assembler{seq: seq, out: out}
}

// Emit stamps rec with the next identifier and writes it. The stamped record
// is returned even when the write fails.
func (a *Assembler) Emit(rec core.Record, trace *ingesttrace.MessageTrace) (core.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec.UniqueID = a.seq.Next()
	if err := a.out.Write(rec, trace); err != nil {
		return rec, errors.Wrapf(err, "emit %s (%s:%d)", rec.UniqueID, rec.FileSource, rec.LineNumber)
	}
	a.emitted++
	return rec, nil
}

// Emitted reports how many records reached the sink.
func (a *Assembler) Emitted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emitted
}
