package sink

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/ingesttrace"
)

// CSVSink writes records to a temporary file next to the target path and
// renames it into place on Close, so readers never see a partial file.
type CSVSink struct {
	path string

	mu     sync.Mutex
	tmp    *os.File
	w      *csv.Writer
	rows   int
	closed bool
}

// OpenCSV creates the temporary file and writes the header row.
func OpenCSV(path string) (*CSVSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create csv dir")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "create csv temp file")
	}
	s := &CSVSink{path: path, tmp: tmp, w: csv.NewWriter(tmp)}
	if err := s.w.Write(core.Columns); err != nil {
		s.Abort()
		return nil, errors.Wrap(err, "write csv header")
	}
	return s, nil
}

func (s *CSVSink) Write(rec core.Record, _ *ingesttrace.MessageTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("csv sink closed")
	}
	if err := s.w.Write(rec.Row()); err != nil {
		return errors.Wrapf(err, "write csv row %s", rec.UniqueID)
	}
	s.rows++
	return nil
}

// Rows reports the number of data rows written.
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Path is the final output path.
func (s *CSVSink) Path() string { return s.path }

// Close flushes the temporary file and renames it over the target.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.discardLocked()
		return errors.Wrap(err, "flush csv")
	}
	if err := s.tmp.Sync(); err != nil {
		s.discardLocked()
		return errors.Wrap(err, "sync csv")
	}
	if err := s.tmp.Close(); err != nil {
		_ = os.Remove(s.tmp.Name())
		return errors.Wrap(err, "close csv")
	}
	if err := os.Rename(s.tmp.Name(), s.path); err != nil {
		_ = os.Remove(s.tmp.Name())
		return errors.Wrap(err, "rename csv into place")
	}
	return nil
}

// Abort drops the temporary file and leaves any previous output untouched.
func (s *CSVSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.discardLocked()
}

func (s *CSVSink) discardLocked() {
	_ = s.tmp.Close()
	_ = os.Remove(s.tmp.Name())
}
