// Package wal implements the WAL collaborator (spec.md §6): an
// append-only log of entry.DataRecord values, one JSON line per record,
// rotated by size via lumberjack the same way internal/obslog rotates
// application logs.
//
// Durability here is coarse: each Log call writes one line straight to
// the current segment file, with no fsync. There is no group-commit
// batching and no checksum per record — segment boundaries are tracked externally (see
// internal/wal/migrations) so a compaction tool can reason about which
// segments are safe to drop once their entries are known to be in the
// row store and external store.
package wal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitaliisemenov/gridcache/internal/entry"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// Config configures the segment writer.
type Config struct {
	Filename   string `mapstructure:"filename" validate:"required"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig matches gridconfig's wal.segment defaults.
func DefaultConfig() Config {
	return Config{
		Filename:   "gridcache-wal.log",
		MaxSizeMB:  100,
		MaxBackups: 10,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// line is the on-disk JSON shape of one WAL record.
type line struct {
	Kind      entry.DataRecordKind `json:"kind"`
	Key       string               `json:"key"`
	Value     json.RawMessage      `json:"value,omitempty"`
	Version   version.Version      `json:"version"`
	Partition int                  `json:"partition"`
	WrittenAt time.Time            `json:"written_at"`
}

// SegmentIndex records segment boundaries for compaction tooling (see
// internal/wal/migrations). Left nil, Log skips index bookkeeping.
type SegmentIndex interface {
	RecordAppend(segment string, order int64) error
}

// WAL is the append-only segment writer. The zero value is not usable;
// construct with Open.
type WAL struct {
	mu       sync.Mutex
	cfg      Config
	writer   *lumberjack.Logger
	index    SegmentIndex
	logger   *slog.Logger
	sequence int64
}

// Open creates (or appends to) the configured segment file. index may be
// nil if segment-boundary tracking is not wired.
func Open(cfg Config, index SegmentIndex, logger *slog.Logger) (*WAL, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Filename == "" {
		return nil, fmt.Errorf("wal: filename required")
	}
	w := &WAL{
		cfg: cfg,
		writer: &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		index:  index,
		logger: logger,
	}
	return w, nil
}

// Log satisfies entry.WAL: appends rec as one JSON line and flushes it to
// the OS immediately so a crash right after Log returns loses at most
// the in-flight operation, not prior ones.
func (w *WAL) Log(rec entry.DataRecord) error {
	valueJSON, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("wal: encode value: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.sequence++
	seq := w.sequence

	l := line{
		Kind:      rec.Kind,
		Key:       rec.Key,
		Value:     valueJSON,
		Version:   rec.Version,
		Partition: rec.Partition,
		WrittenAt: time.Now(),
	}
	encoded, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("wal: encode record: %w", err)
	}
	encoded = append(encoded, '\n')

	if _, err := w.writer.Write(encoded); err != nil {
		w.logger.Error("wal append failed", "key", rec.Key, "err", err)
		return fmt.Errorf("wal: append: %w", err)
	}

	if w.index != nil {
		if err := w.index.RecordAppend(w.cfg.Filename, seq); err != nil {
			w.logger.Warn("wal segment index update failed", "key", rec.Key, "err", err)
		}
	}
	return nil
}

// Rotate forces the current segment to close and a new one to open,
// mirroring lumberjack.Logger.Rotate so compaction can archive a
// known-closed file instead of one still being appended to.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Rotate()
}

// Close closes the current segment file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Close()
}
