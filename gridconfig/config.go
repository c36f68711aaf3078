// Package gridconfig is the viper-backed configuration tree for the
// gridcache engine and CLI, mirroring the teacher's internal/config
// package: one root Config struct of mapstructure-tagged sub-structs,
// a setDefaults/Load pair, and a validator-backed Validate().
package gridconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/vitaliisemenov/gridcache/internal/dr"
	"github.com/vitaliisemenov/gridcache/internal/obslog"
	"github.com/vitaliisemenov/gridcache/internal/store/external"
	"github.com/vitaliisemenov/gridcache/internal/store/rowstore"
	"github.com/vitaliisemenov/gridcache/internal/wal"
)

// Profile selects the deployment shape: Lite runs entirely embedded
// (SQLite external store, no Redis), Standard wires Postgres and,
// optionally, Redis-backed DR replication.
type Profile string

const (
	ProfileLite     Profile = "lite"
	ProfileStandard Profile = "standard"
)

// Config is the root configuration tree.
type Config struct {
	Profile Profile `mapstructure:"profile" validate:"required,oneof=lite standard"`

	Engine        EngineConfig        `mapstructure:"engine"`
	RowStore      rowstore.Config     `mapstructure:"row_store"`
	ExternalStore ExternalStoreConfig `mapstructure:"external_store"`
	WAL           WALConfig           `mapstructure:"wal"`
	Redis         RedisConfig         `mapstructure:"redis"`
	DR            DRConfig            `mapstructure:"dr"`
	Log           LogConfig           `mapstructure:"log"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// EngineConfig configures the in-process engine's identity and the
// per-entry collaborator toggles threaded into every entry.Collaborators
// it constructs.
type EngineConfig struct {
	NodeOrder       uint64        `mapstructure:"node_order" validate:"required"`
	DataCenterID    uint8         `mapstructure:"data_center_id"`
	Partitions      int           `mapstructure:"partitions" validate:"min=1"`
	DeferredDelete  bool          `mapstructure:"deferred_delete"`
	WriteThrough    bool          `mapstructure:"write_through"`
	ReadThrough     bool          `mapstructure:"read_through"`
	NearCache       bool          `mapstructure:"near_cache"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"` // 0 == eternal
	TTLScanInterval time.Duration `mapstructure:"ttl_scan_interval"`
}

// ExternalStoreConfig selects and configures the write-through/
// read-through backend. Backend is forced to "sqlite" for the Lite
// profile and "postgres" for Standard by Validate, the same
// profile-gates-backend rule the teacher's StorageConfig.Backend
// enforces against DeploymentProfile.
type ExternalStoreConfig struct {
	Enabled  bool                    `mapstructure:"enabled"`
	Backend  string                  `mapstructure:"backend" validate:"omitempty,oneof=sqlite postgres"`
	Postgres external.PostgresConfig `mapstructure:"postgres"`
	SQLite   external.SQLiteConfig   `mapstructure:"sqlite"`
}

// WALConfig gates whether the WAL collaborator is wired at all; wal.Config
// carries the segment-file settings themselves.
type WALConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Segment wal.Config `mapstructure:"segment"`
	Index   string     `mapstructure:"index_path"`
}

// RedisConfig configures the go-redis client shared by the DR
// replicator, mirroring the teacher's RedisConfig field-for-field.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// DRConfig gates the optional cross-datacenter replicator.
type DRConfig struct {
	Enabled bool      `mapstructure:"enabled"`
	Stream  dr.Config `mapstructure:"stream"`
}

// LogConfig mirrors obslog.Config field-for-field so it can be
// converted with a plain struct literal in ToObslog.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ToObslog converts to the logger package's own Config shape.
func (c LogConfig) ToObslog() obslog.Config {
	return obslog.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		Filename:   c.Filename,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// MetricsConfig gates the Prometheus namespace new metrics are
// registered under.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads configuration from configPath (if non-empty) layered over
// defaults and environment variables (GRIDCACHE_-prefixed, "." replaced
// with "_"), the same precedence the teacher's LoadConfig uses.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("gridcache")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("gridconfig: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("gridconfig: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gridconfig: validate: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", string(ProfileStandard))

	v.SetDefault("engine.node_order", 1)
	v.SetDefault("engine.partitions", 1024)
	v.SetDefault("engine.deferred_delete", false)
	v.SetDefault("engine.write_through", false)
	v.SetDefault("engine.read_through", false)
	v.SetDefault("engine.ttl_scan_interval", "5s")

	v.SetDefault("row_store.l1_size", 1000)

	v.SetDefault("external_store.enabled", true)
	v.SetDefault("external_store.backend", "postgres")
	v.SetDefault("external_store.postgres.port", 5432)
	v.SetDefault("external_store.postgres.ssl_mode", "disable")
	v.SetDefault("external_store.postgres.max_conns", 10)
	v.SetDefault("external_store.postgres.table", "cache_rows")
	v.SetDefault("external_store.sqlite.path", "gridcache.db")
	v.SetDefault("external_store.sqlite.table", "cache_rows")

	v.SetDefault("wal.enabled", true)
	v.SetDefault("wal.segment.filename", "gridcache-wal.log")
	v.SetDefault("wal.segment.max_size_mb", 100)
	v.SetDefault("wal.segment.max_backups", 10)
	v.SetDefault("wal.segment.max_age_days", 30)
	v.SetDefault("wal.segment.compress", true)
	v.SetDefault("wal.index_path", "gridcache-wal-index.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("dr.enabled", false)
	v.SetDefault("dr.stream.stream_key", "gridcache:dr:stream")
	v.SetDefault("dr.stream.max_len", 100_000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "gridcache")
}

// Validate enforces the struct tags plus the profile-gates-backend rule
// the teacher's Config.validateProfile encodes: Lite always runs
// embedded (SQLite, no external Postgres/Redis dependency), Standard
// requires Postgres and may additionally enable DR over Redis.
func (c *Config) Validate() error {
	v := validator.New()
	// The backend, WAL segment and DR stream sub-configs are validated
	// below only when enabled; RowStore is left out because rowstore.New
	// substitutes its default for a non-positive L1Size.
	if err := v.StructExcept(c, "RowStore", "ExternalStore.Postgres", "ExternalStore.SQLite", "WAL.Segment", "DR.Stream"); err != nil {
		return fmt.Errorf("struct validation: %w", err)
	}

	switch c.Profile {
	case ProfileLite:
		if c.ExternalStore.Enabled && c.ExternalStore.Backend != "sqlite" {
			return fmt.Errorf("lite profile requires external_store.backend=sqlite (got %q)", c.ExternalStore.Backend)
		}
		if c.DR.Enabled {
			return fmt.Errorf("lite profile does not support dr.enabled=true (requires Redis)")
		}
	case ProfileStandard:
		if c.ExternalStore.Enabled && c.ExternalStore.Backend != "postgres" {
			return fmt.Errorf("standard profile requires external_store.backend=postgres (got %q)", c.ExternalStore.Backend)
		}
	}

	if c.ExternalStore.Enabled {
		switch c.ExternalStore.Backend {
		case "sqlite":
			if err := v.Struct(c.ExternalStore.SQLite); err != nil {
				return fmt.Errorf("external_store.sqlite: %w", err)
			}
		case "postgres":
			if err := v.Struct(c.ExternalStore.Postgres); err != nil {
				return fmt.Errorf("external_store.postgres: %w", err)
			}
		}
	}

	if c.WAL.Enabled {
		if err := v.Struct(c.WAL.Segment); err != nil {
			return fmt.Errorf("wal.segment: %w", err)
		}
	}

	if c.DR.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("dr.enabled=true requires redis.addr")
		}
		if err := v.Struct(c.DR.Stream); err != nil {
			return fmt.Errorf("dr.stream: %w", err)
		}
	}

	return nil
}
