package external

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

// SQLiteConfig configures the lite-profile backend: a single embedded
// database file, no external server required.
type SQLiteConfig struct {
	Path  string `mapstructure:"path" validate:"required"`
	Table string `mapstructure:"table"`
}

// DefaultSQLiteConfig matches the table name used by the Postgres
// backend so callers can switch profiles without touching anything
// but the connection string.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{Path: "gridcache.db", Table: "cache_rows"}
}

// SQLiteStore implements entry.ExternalStore over an embedded SQLite
// file via modernc.org/sqlite (pure Go, no cgo).
type SQLiteStore struct {
	db     *sql.DB
	cfg    SQLiteConfig
	logger *slog.Logger
	mu     sync.Mutex // database/sql serializes internally, but guards ensureSchema + writes against each other for clarity
}

// OpenSQLite opens (creating if absent) the database file and ensures
// the backing table exists.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Table == "" {
		cfg.Table = "cache_rows"
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &SQLiteStore{db: db, cfg: cfg, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("opened sqlite external store", "path", cfg.Path, "table", cfg.Table)
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`, s.cfg.Table)
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("external store: create table: %w", err)
	}
	return nil
}

// Load satisfies entry.ExternalStore.
func (s *SQLiteStore) Load(ctx context.Context, key string) (any, bool, error) {
	var data string
	query := fmt.Sprintf("SELECT data FROM %s WHERE key = ?", s.cfg.Table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		s.logger.Error("sqlite load failed", "key", key, "err", err)
		return nil, false, err
	}

	val, _, err := decodeRecord([]byte(data))
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Put satisfies entry.ExternalStore.
func (s *SQLiteStore) Put(ctx context.Context, key string, val any, ver version.Version) error {
	encoded, err := encodeRecord(val, ver)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`INSERT INTO %s (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data`, s.cfg.Table)
	if _, err := s.db.ExecContext(ctx, query, key, string(encoded)); err != nil {
		s.logger.Error("sqlite put failed", "key", key, "err", err)
		return err
	}
	return nil
}

// Remove satisfies entry.ExternalStore.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.cfg.Table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		s.logger.Error("sqlite remove failed", "key", key, "err", err)
		return err
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
