package sink

import (
	"github.com/pkg/errors"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/ingesttrace"
)

// Named pairs a writer with the sink name used in errors and metrics.
type Named struct {
	Name   string
	Writer Writer
}

// Fanout writes every record to each sink in order and stops at the first failure.
type Fanout struct {
	sinks   []Named
	onError func(name string, err error)
}

// NewFanout returns a writer over sinks. onError, when set, is told which sink failed.
func NewFanout(onError func(name string, err error), sinks ...Named) *Fanout {
	return &Fanout{sinks: sinks, onError: onError}
}

func (f *Fanout) Write(rec core.Record, trace *ingesttrace.MessageTrace) error {
	for _, s := range f.sinks {
		if err := s.Writer.Write(rec, trace); err != nil {
			if f.onError != nil {
				f.onError(s.Name, err)
			}
			return errors.Wrapf(err, "sink %s", s.Name)
		}
	}
	trace.IncCounter(ingesttrace.StageWritten)
	return nil
}

