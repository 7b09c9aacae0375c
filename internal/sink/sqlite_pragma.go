package sink

import (
	"context"
	"database/sql"
	"errors"
	"log"
)

// tuningPragmas trade durability for bulk-load speed; a lost run is simply re-run.
var tuningPragmas = []string{
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
	"PRAGMA temp_store=MEMORY;",
	"PRAGMA cache_size=-20000;",
	"PRAGMA mmap_size=268435456;",
}

// ApplySQLitePragmas applies the bulk-load tuning statements. Each pragma
// result is logged; failures are not fatal.
func ApplySQLitePragmas(ctx context.Context, db *sql.DB) {
	for _, pragma := range tuningPragmas {
		if value, err := applyPragma(ctx, db, pragma); err != nil {
			log.Printf("sqlite: pragma %s failed: %v", pragma, err)
		} else {
			log.Printf("sqlite: pragma %s => %v", pragma, value)
		}
	}
}

func applyPragma(ctx context.Context, db *sql.DB, pragma string) (any, error) {
	row := db.QueryRowContext(ctx, pragma)
	var value any
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
				return nil, execErr
			}
			return "ok", nil
		}
		return nil, err
	}
	return value, nil
}
