package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/pkg/errors"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/ingesttrace"
)

const schema = `CREATE TABLE IF NOT EXISTS records (
  unique_id TEXT NOT NULL PRIMARY KEY,
  file_source TEXT NOT NULL DEFAULT '',
  date TEXT NOT NULL DEFAULT '',
  time TEXT NOT NULL DEFAULT '',
  sender_name TEXT NOT NULL DEFAULT '',
  sender_phone TEXT NOT NULL DEFAULT '',
  sender_phone_2 TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  message_backup TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  region TEXT NOT NULL DEFAULT '',
  line_number INTEGER NOT NULL DEFAULT 0,
  run_id TEXT NOT NULL DEFAULT ''
);`

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_records_date ON records(date);`,
	`CREATE INDEX IF NOT EXISTS idx_records_sender_phone ON records(sender_phone);`,
	`CREATE INDEX IF NOT EXISTS idx_records_region ON records(region);`,
	`CREATE INDEX IF NOT EXISTS idx_records_file_source ON records(file_source);`,
	`CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);`,
}

var upsertSQL = func() string {
	cols := append(append([]string(nil), core.Columns...), "run_id")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, fmt.Sprintf("%s=excluded.%s", c, c))
	}
	return fmt.Sprintf("INSERT INTO records (%s)\nVALUES (%s)\nON CONFLICT(unique_id) DO UPDATE SET %s;",
		strings.Join(cols, ", "), placeholders, strings.Join(updates, ", "))
}()

// SQLiteSink mirrors the CSV contract into a records table. Every row carries
// the run id so rows left over from earlier runs can be pruned.
//
// Between Begin and Commit every statement runs in one transaction, so a run
// that fails part way leaves the previous run's rows as they were.
type SQLiteSink struct {
	db    *sql.DB
	runID string

	mu     sync.Mutex
	tx     *sql.Tx
	upsert *sql.Stmt
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteOptions configures OpenSQLite.
type SQLiteOptions struct {
	RunID  string
	Tuning bool
}

func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	if opts.Tuning {
		ApplySQLitePragmas(context.Background(), db)
	}
	return &SQLiteSink{db: db, runID: opts.RunID}, nil
}

// EnsureIndexes creates the lookup indexes. Call after any schema migration.
func (s *SQLiteSink) EnsureIndexes(ctx context.Context) error {
	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create index")
		}
	}
	return nil
}

// Begin opens the run transaction. Writes, Prune, Count and Get go through it
// until Commit or Rollback.
func (s *SQLiteSink) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return errors.New("sqlite run already started")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin run")
	}
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "prepare upsert")
	}
	s.tx, s.upsert = tx, stmt
	return nil
}

// Commit prunes rows from earlier runs and commits the run transaction.
// It returns the number of pruned rows.
func (s *SQLiteSink) Commit(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return 0, errors.New("sqlite run not started")
	}
	pruned, err := s.pruneOn(ctx, s.tx)
	if err != nil {
		s.endLocked(false)
		return 0, err
	}
	if err := s.endLocked(true); err != nil {
		return 0, errors.Wrap(err, "commit run")
	}
	return pruned, nil
}

// Rollback discards everything written since Begin. It is a no-op without an
// open run.
func (s *SQLiteSink) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	return errors.Wrap(s.endLocked(false), "rollback run")
}

func (s *SQLiteSink) endLocked(commit bool) error {
	_ = s.upsert.Close()
	tx := s.tx
	s.tx, s.upsert = nil, nil
	if commit {
		return tx.Commit()
	}
	return tx.Rollback()
}

// Close rolls back an unfinished run and closes the database.
func (s *SQLiteSink) Close() error {
	if err := s.Rollback(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

func (s *SQLiteSink) Write(rec core.Record, _ *ingesttrace.MessageTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsert != nil {
		_, err := s.upsert.Exec(s.args(rec)...)
		return errors.Wrapf(err, "upsert record %s", rec.UniqueID)
	}
	_, err := s.db.Exec(upsertSQL, s.args(rec)...)
	return errors.Wrapf(err, "upsert record %s", rec.UniqueID)
}

// WriteBatch upserts entries in one transaction, or inside the run
// transaction when one is open.
func (s *SQLiteSink) WriteBatch(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsert != nil {
		for _, e := range entries {
			if _, err := s.upsert.Exec(s.args(e.Record)...); err != nil {
				return errors.Wrapf(err, "upsert record %s", e.Record.UniqueID)
			}
		}
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin batch")
	}
	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "prepare upsert")
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(s.args(e.Record)...); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "upsert record %s", e.Record.UniqueID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit batch")
}

// q is the run transaction when one is open. Callers hold s.mu.
func (s *SQLiteSink) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *SQLiteSink) args(rec core.Record) []any {
	return []any{
		rec.UniqueID, rec.FileSource, rec.Date, rec.Time,
		rec.SenderName, rec.SenderPhone, rec.SenderPhone2,
		rec.Message, rec.MessageBackup, rec.Status, rec.Region,
		rec.LineNumber, s.runID,
	}
}

// Prune deletes rows not written by this run and returns how many went.
func (s *SQLiteSink) Prune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneOn(ctx, s.q())
}

func (s *SQLiteSink) pruneOn(ctx context.Context, q querier) (int64, error) {
	if s.runID == "" {
		return 0, nil
	}
	res, err := q.ExecContext(ctx, `DELETE FROM records WHERE run_id != ?;`, s.runID)
	if err != nil {
		return 0, errors.Wrap(err, "prune records")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "prune rows affected")
	}
	return n, nil
}

// Count returns the number of stored records.
func (s *SQLiteSink) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if err := s.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM records;`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}

// Get loads one record by id.
func (s *SQLiteSink) Get(ctx context.Context, uniqueID string) (core.Record, error) {
	const query = `SELECT unique_id, file_source, date, time, sender_name, sender_phone, sender_phone_2,
  message, message_backup, status, region, line_number FROM records WHERE unique_id = ?;`
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec core.Record
	err := s.q().QueryRowContext(ctx, query, uniqueID).Scan(
		&rec.UniqueID, &rec.FileSource, &rec.Date, &rec.Time,
		&rec.SenderName, &rec.SenderPhone, &rec.SenderPhone2,
		&rec.Message, &rec.MessageBackup, &rec.Status, &rec.Region, &rec.LineNumber,
	)
	if err != nil {
		return core.Record{}, errors.Wrapf(err, "get record %s", uniqueID)
	}
	return rec, nil
}

func (s *SQLiteSink) Ping() error {
	return s.db.Ping()
}

// RawDB exposes the handle for schema migration.
func (s *SQLiteSink) RawDB() *sql.DB {
	return s.db
}

func (s *SQLiteSink) String() string {
	return fmt.Sprintf("SQLiteSink{%p run=%s}", s.db, s.runID)
}
