package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Index implements wal.SegmentIndex over the migrated wal_segments table:
// one row per segment filename, widening first_order/last_order as
// records land in that segment.
type Index struct {
	db *sql.DB
	mu sync.Mutex
}

// NewIndex wraps an already-migrated database handle (see Open).
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// RecordAppend satisfies wal.SegmentIndex.
func (idx *Index) RecordAppend(segment string, order int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	const q = `
		INSERT INTO wal_segments (segment, first_order, last_order, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(segment) DO UPDATE SET
			last_order = excluded.last_order,
			updated_at = CURRENT_TIMESTAMP`
	_, err := idx.db.Exec(q, segment, order, order)
	if err != nil {
		return fmt.Errorf("wal index: record append: %w", err)
	}
	return nil
}

// Segment is one row of the segment boundary index.
type Segment struct {
	Name       string
	FirstOrder int64
	LastOrder  int64
}

// Segments lists every tracked segment in insertion order, for the
// wal-compact CLI verb to decide which closed segments are safe to
// archive or drop.
func (idx *Index) Segments(ctx context.Context) ([]Segment, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT segment, first_order, last_order FROM wal_segments ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("wal index: list segments: %w", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var s Segment
		if err := rows.Scan(&s.Name, &s.FirstOrder, &s.LastOrder); err != nil {
			return nil, fmt.Errorf("wal index: scan segment: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
