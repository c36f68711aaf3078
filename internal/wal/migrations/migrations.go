// Package migrations tracks WAL segment boundaries (segment filename ->
// first/last record order) in a tiny goose-migrated SQLite table,
// mirroring the teacher's database.RunMigrations/goose.Up pairing but
// against an embedded schema and an embedded database instead of an
// external Postgres instance.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Open opens (creating if absent) the SQLite file at path and applies
// any pending segment-index migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("wal migrations: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("wal migrations: ping: %w", err)
	}

	goose.SetBaseFS(schemaFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("wal migrations: set dialect: %w", err)
	}
	if err := goose.Up(db, "schema"); err != nil {
		db.Close()
		return nil, fmt.Errorf("wal migrations: up: %w", err)
	}

	logger.Info("wal segment index migrations applied", "path", path)
	return db, nil
}
