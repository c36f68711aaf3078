// Package rowstore implements entry.RowStore as a two-tier row cache:
// an in-process LRU (L1) backed by an optional external store (L2).
// Reads fall through L1 -> L2 -> miss, populating L1 on an L2 hit;
// writes go to both tiers so a restart (or an L1 eviction) can still
// recover the row from L2.
package rowstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vitaliisemenov/gridcache/internal/closure"
)

// ExternalStore is the L2 persistence tier a Store may fall through to.
// It stores whole closure.Row values; entry.ExternalStore, which stores a
// value and a version, does not satisfy it.
type ExternalStore interface {
	Load(ctx context.Context, key string) (closure.Row, bool, error)
	Put(ctx context.Context, key string, row closure.Row) error
	Remove(ctx context.Context, key string) error
}

// Config controls the L1 tier's size.
type Config struct {
	L1Size int `mapstructure:"l1_size" validate:"min=1"`
}

// DefaultConfig matches the L1 size the teacher used for its template
// cache.
func DefaultConfig() Config {
	return Config{L1Size: 1000}
}

// Stats mirrors the teacher's hit/miss counters, generalized to a
// single row store instead of a template-specific cache.
type Stats struct {
	L1Hits, L1Misses int64
	L2Hits, L2Misses int64
}

// Store implements entry.RowStore.
type Store struct {
	l1     *lru.Cache[string, closure.Row]
	l2     ExternalStore // nil disables the L2 tier
	logger *slog.Logger

	// mu serializes Invoke's read-plan-write sequence per store; a
	// single mutex is simple and matches the teacher's own
	// whole-map-locked fake/in-memory caches rather than a striped
	// per-key lock, since row-store contention is already bounded by
	// each entry serializing its own calls into InnerSet/InnerUpdate.
	mu sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Store. l2 may be nil to run L1-only (e.g. for a
// near-cache with no persistence tier). logger defaults to
// slog.Default() if nil.
func New(cfg Config, l2 ExternalStore, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.L1Size
	if size <= 0 {
		size = DefaultConfig().L1Size
	}
	l1, err := lru.New[string, closure.Row](size)
	if err != nil {
		return nil, fmt.Errorf("rowstore: failed to create L1 cache: %w", err)
	}
	return &Store{l1: l1, l2: l2, logger: logger}, nil
}

func rowKey(partitionID int, key string) string {
	return fmt.Sprintf("%d:%s", partitionID, key)
}

// Read satisfies entry.RowStore.
func (s *Store) Read(ctx context.Context, partitionID int, key string) (closure.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx, partitionID, key)
}

func (s *Store) readLocked(ctx context.Context, partitionID int, key string) (closure.Row, error) {
	rk := rowKey(partitionID, key)
	if row, ok := s.l1.Get(rk); ok {
		s.recordL1(true)
		return row, nil
	}
	s.recordL1(false)

	if s.l2 == nil {
		return closure.Row{}, nil
	}

	row, found, err := s.l2.Load(ctx, key)
	if err != nil {
		s.logger.Error("rowstore: L2 load failed", "key", key, "err", err)
		return closure.Row{}, err
	}
	if !found {
		s.recordL2(false)
		return closure.Row{}, nil
	}
	s.recordL2(true)
	s.l1.Add(rk, row)
	return row, nil
}

// Update satisfies entry.RowStore.
func (s *Store) Update(ctx context.Context, partitionID int, key string, row closure.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, partitionID, key, row)
}

func (s *Store) updateLocked(ctx context.Context, partitionID int, key string, row closure.Row) error {
	rk := rowKey(partitionID, key)
	s.l1.Add(rk, row)

	if s.l2 == nil {
		return nil
	}
	if err := s.l2.Put(ctx, key, row); err != nil {
		s.logger.Warn("rowstore: L2 put failed, L1 still updated", "key", key, "err", err)
		return nil
	}
	return nil
}

// Remove satisfies entry.RowStore.
func (s *Store) Remove(ctx context.Context, partitionID int, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, partitionID, key)
}

func (s *Store) removeLocked(ctx context.Context, partitionID int, key string) error {
	rk := rowKey(partitionID, key)
	s.l1.Remove(rk)

	if s.l2 == nil {
		return nil
	}
	if err := s.l2.Remove(ctx, key); err != nil {
		s.logger.Warn("rowstore: L2 remove failed, L1 already cleared", "key", key, "err", err)
	}
	return nil
}

// Invoke satisfies entry.RowStore: it reads the current row, applies
// plan, and commits whatever operation the result calls for, all
// while holding the store's lock so no interleaved Read/Update can
// observe a half-applied plan.
func (s *Store) Invoke(ctx context.Context, partitionID int, key string, plan func(old closure.Row) closure.UpdateResult) (closure.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.readLocked(ctx, partitionID, key)
	if err != nil {
		return closure.UpdateResult{}, err
	}

	result := plan(old)
	switch result.Op {
	case closure.OpPut:
		if err := s.updateLocked(ctx, partitionID, key, result.NewRow); err != nil {
			return result, err
		}
	case closure.OpRemove:
		if err := s.removeLocked(ctx, partitionID, key); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Stats returns a snapshot of the hit/miss counters.
func (s *Store) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Store) recordL1(hit bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if hit {
		s.stats.L1Hits++
	} else {
		s.stats.L1Misses++
	}
}

func (s *Store) recordL2(hit bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if hit {
		s.stats.L2Hits++
	} else {
		s.stats.L2Misses++
	}
}
