package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

type sqliteColumn struct {
	Name        string
	Type        string
	NotNull     bool
	DefaultText string
}

// textColumns are the columns a legacy records table may lack or hold NULLs in.
var textColumns = []string{
	"file_source", "date", "time", "sender_name", "sender_phone", "sender_phone_2",
	"message", "message_backup", "status", "region", "run_id",
}

// migrateSQLite brings a records table written by an older loader up to the
// current shape: missing columns added, NULL text normalized to '', duplicate
// unique_id rows collapsed and a unique index in place for upserts.
func migrateSQLite(ctx context.Context, db *sql.DB) error {
	path := sqlitePath(ctx, db)
	userVersion, err := sqliteUserVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite: user_version: %w", err)
	}

	log.Printf("extractor: sqlite: path=%s user_version=%d", path, userVersion)

	columns, err := sqliteTableInfo(ctx, db, "records")
	if err != nil {
		return fmt.Errorf("sqlite: describe records: %w", err)
	}
	if len(columns) == 0 {
		log.Printf("extractor: sqlite: records table missing; skipping migration")
		return nil
	}
	if _, ok := columns["unique_id"]; !ok {
		return fmt.Errorf("sqlite: records table has no unique_id column")
	}

	added := 0
	for _, name := range textColumns {
		if _, ok := columns[name]; ok {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE records ADD COLUMN %s TEXT NOT NULL DEFAULT '';`, name)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: add %s column: %w", name, err)
		}
		added++
		log.Printf("extractor: sqlite: added %s column to records", name)
	}
	if _, ok := columns["line_number"]; !ok {
		if _, err := db.ExecContext(ctx, `ALTER TABLE records ADD COLUMN line_number INTEGER NOT NULL DEFAULT 0;`); err != nil {
			return fmt.Errorf("sqlite: add line_number column: %w", err)
		}
		added++
		log.Printf("extractor: sqlite: added line_number column to records")
	}

	var normalized int64
	for _, name := range textColumns {
		res, execErr := db.ExecContext(ctx, fmt.Sprintf(`UPDATE records SET %s='' WHERE %s IS NULL;`, name, name))
		if execErr != nil {
			return fmt.Errorf("sqlite: normalize %s: %w", name, execErr)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			normalized += n
			log.Printf("extractor: sqlite: normalized %s nulls=%d", name, n)
		}
	}

	dedupeSQL := `DELETE FROM records
WHERE unique_id IS NOT NULL
  AND rowid NOT IN (
    SELECT MIN(rowid)
    FROM records
    WHERE unique_id IS NOT NULL
    GROUP BY unique_id
);`
	if res, execErr := db.ExecContext(ctx, dedupeSQL); execErr != nil {
		return fmt.Errorf("sqlite: dedupe unique_id: %w", execErr)
	} else if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("extractor: sqlite: removed %d duplicate records", n)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM records WHERE unique_id IS NULL OR TRIM(unique_id) = '';`); err != nil {
		return fmt.Errorf("sqlite: drop records without unique_id: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS records_uq_unique_id
        ON records(unique_id);`); err != nil {
		return fmt.Errorf("sqlite: ensure records_uq_unique_id: %w", err)
	}

	hasIndex, err := sqliteHasIndex(ctx, db, "records", "records_uq_unique_id")
	if err != nil {
		return fmt.Errorf("sqlite: inspect indices: %w", err)
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records;`).Scan(&total); err != nil {
		return fmt.Errorf("sqlite: count records: %w", err)
	}

	log.Printf("extractor: sqlite: added_columns=%d normalized_nulls=%d records_uq_unique_id=%v rows=%d",
		added,
		normalized,
		hasIndex,
		total,
	)

	return nil
}

func sqlitePath(ctx context.Context, db *sql.DB) string {
	rows, err := db.QueryContext(ctx, `PRAGMA database_list;`)
	if err != nil {
		return "(unknown)"
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq  int
			name string
			file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return "(unknown)"
		}
		if strings.EqualFold(strings.TrimSpace(name), "main") {
			if file.Valid && strings.TrimSpace(file.String) != "" {
				return file.String
			}
			return "(memory)"
		}
	}
	return "(unknown)"
}

func sqliteUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var userVersion int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&userVersion); err != nil {
		return 0, err
	}
	return userVersion, nil
}

func sqliteTableInfo(ctx context.Context, db *sql.DB, table string) (map[string]sqliteColumn, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]sqliteColumn)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		out[strings.ToLower(strings.TrimSpace(name))] = sqliteColumn{
			Name:        name,
			Type:        strings.TrimSpace(colType),
			NotNull:     notNull == 1,
			DefaultText: strings.TrimSpace(defaultVal.String),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func sqliteHasIndex(ctx context.Context, db *sql.DB, table, index string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list('%s');`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return false, err
		}
		if strings.EqualFold(strings.TrimSpace(name), index) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return false, nil
}
