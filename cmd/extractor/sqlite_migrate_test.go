package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/sink"
)

func TestMigrateSQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "legacy.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	legacy := `CREATE TABLE records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  unique_id TEXT,
  file_source TEXT,
  date TEXT,
  time TEXT,
  sender_name TEXT,
  sender_phone TEXT,
  message TEXT,
  line_number INTEGER
);`
	if _, err := db.Exec(legacy); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	seed := `INSERT INTO records (unique_id, file_source, date, time, sender_name, sender_phone, message, line_number)
VALUES
  ('PRO1', '_chat.txt', '10/06/2025', '5:22:03 AM', 'Ahmed', NULL, 'hello', 2),
  ('PRO1', '_chat.txt', '10/06/2025', '5:22:03 AM', 'Ahmed', NULL, 'hello again', 2),
  ('PRO2', '_chat.txt', '10/06/2025', '5:30:00 AM', NULL, '01012345678', NULL, 5),
  (NULL, '_chat.txt', '', '', '', '', 'orphan', 9);
`
	if _, err := db.Exec(seed); err != nil {
		t.Fatalf("seed rows: %v", err)
	}

	if err := migrateSQLite(context.Background(), db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	// Running twice is a no-op.
	if err := migrateSQLite(context.Background(), db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	cols, err := sqliteTableInfo(context.Background(), db, "records")
	if err != nil {
		t.Fatalf("inspect columns: %v", err)
	}
	for _, name := range []string{"sender_phone_2", "message_backup", "status", "region", "run_id"} {
		col, ok := cols[name]
		if !ok {
			t.Fatalf("expected %s column to exist", name)
		}
		if !col.NotNull || col.DefaultText == "" {
			t.Fatalf("expected %s NOT NULL with default, got %+v", name, col)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM records;`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows after dedupe, got %d", count)
	}

	var nulls int
	if err := db.QueryRow(`SELECT COUNT(*) FROM records WHERE sender_name IS NULL OR sender_phone IS NULL OR message IS NULL;`).Scan(&nulls); err != nil {
		t.Fatalf("count nulls: %v", err)
	}
	if nulls != 0 {
		t.Fatalf("expected no NULL text columns, got %d", nulls)
	}

	if _, err := db.Exec(`INSERT INTO records (unique_id) VALUES ('PRO1');`); err == nil {
		t.Fatalf("expected unique index to prevent duplicate insert")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The migrated table accepts upserts from the sink.
	s, err := sink.OpenSQLite(dbPath, sink.SQLiteOptions{RunID: "run-2"})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	if err := s.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	rec := core.Record{UniqueID: "PRO2", FileSource: "_chat.txt", SenderName: "Mona", Message: "updated", LineNumber: 5}
	if err := s.Write(rec, nil); err != nil {
		t.Fatalf("upsert after migrate: %v", err)
	}
	got, err := s.Get(context.Background(), "PRO2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SenderName != "Mona" || got.Message != "updated" {
		t.Fatalf("upsert not applied: %+v", got)
	}
	n, err := s.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected PRO1 from the legacy load pruned, got %d", n)
	}
}

func TestMigrateSQLiteMissingTable(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	if err := migrateSQLite(context.Background(), db); err != nil {
		t.Fatalf("migrate on empty database: %v", err)
	}
}
