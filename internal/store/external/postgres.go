package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

// PostgresConfig configures the standard-profile backend.
type PostgresConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Database string `mapstructure:"database" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`

	MaxConns        int32         `mapstructure:"max_conns" validate:"min=1"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	Table           string        `mapstructure:"table"`
}

// DefaultPostgresConfig mirrors the teacher's own pool defaults.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "gridcache",
		User:            "gridcache",
		SSLMode:         "disable",
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  30 * time.Second,
		Table:           "cache_rows",
	}
}

func (c PostgresConfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// PostgresStore implements entry.ExternalStore over a pgxpool pool,
// storing each row as a single JSONB column keyed by its cache key.
type PostgresStore struct {
	pool     *pgxpool.Pool
	cfg      PostgresConfig
	logger   *slog.Logger
	isClosed atomic.Bool
}

// ConnectPostgres opens the pool and ensures the backing table exists.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Error("failed to create postgres pool", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		logger.Error("failed to ping postgres", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &PostgresStore{pool: pool, cfg: cfg, logger: logger}
	if err := s.ensureSchema(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres external store", "host", cfg.Host, "database", cfg.Database, "table", cfg.Table)
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.cfg.Table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("external store: create table: %w", err)
	}
	return nil
}

// Load satisfies entry.ExternalStore.
func (s *PostgresStore) Load(ctx context.Context, key string) (any, bool, error) {
	if s.isClosed.Load() {
		return nil, false, ErrNotConnected
	}

	var data []byte
	query := fmt.Sprintf("SELECT data FROM %s WHERE key = $1", s.cfg.Table)
	err := s.pool.QueryRow(ctx, query, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		s.logger.Error("postgres load failed", "key", key, "err", err)
		return nil, false, err
	}

	val, _, err := decodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Put satisfies entry.ExternalStore.
func (s *PostgresStore) Put(ctx context.Context, key string, val any, ver version.Version) error {
	if s.isClosed.Load() {
		return ErrNotConnected
	}

	encoded, err := encodeRecord(val, ver)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, s.cfg.Table)
	if _, err := s.pool.Exec(ctx, query, key, encoded); err != nil {
		s.logger.Error("postgres put failed", "key", key, "err", err)
		return err
	}
	return nil
}

// Remove satisfies entry.ExternalStore.
func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	if s.isClosed.Load() {
		return ErrNotConnected
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.cfg.Table)
	if _, err := s.pool.Exec(ctx, query, key); err != nil {
		s.logger.Error("postgres remove failed", "key", key, "err", err)
		return err
	}
	return nil
}

// Close shuts the pool down.
func (s *PostgresStore) Close() error {
	if s.isClosed.Swap(true) {
		return nil
	}
	s.pool.Close()
	return nil
}
