// Package events implements the Event Recorder collaborator (spec.md
// §6): a thin recordable-kind filter gating a fixed-capacity ring
// buffer of READ/PUT/REMOVED/EXPIRED/LOCKED/UNLOCKED events, the same
// "bounded buffer behind a mutex, oldest entry silently drops" shape as
// the teacher's LRU cache but without the TTL/LRU-reordering machinery
// an event log doesn't need.
package events

import (
	"sync"

	"github.com/vitaliisemenov/gridcache/internal/entry"
	"github.com/vitaliisemenov/gridcache/internal/metrics"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// Record is one entry in the ring buffer.
type Record struct {
	PartitionID int
	Key         string
	NodeID      uint64
	Version     version.Version
	Kind        entry.EventKind
	NewValue    any
}

// kindLabel renders an EventKind as the metrics label used elsewhere in
// this repo (lowercase, matching RecordRead/RecordWrite/RecordEviction's
// "result"/"outcome" label conventions).
func kindLabel(kind entry.EventKind) string {
	switch kind {
	case entry.EventRead:
		return "read"
	case entry.EventPut:
		return "put"
	case entry.EventRemoved:
		return "removed"
	case entry.EventExpired:
		return "expired"
	case entry.EventLocked:
		return "locked"
	case entry.EventUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Recorder implements entry.EventRecorder over a fixed-capacity ring
// buffer: once full, the oldest record is silently overwritten by the
// newest, matching spec.md §6's "event bus" being a diagnostic tap, not
// a durable log (that's the WAL's job).
type Recorder struct {
	mu       sync.RWMutex
	buf      []Record
	next     int
	size     int
	capacity int

	recordable map[entry.EventKind]bool
	metrics    *metrics.EntryMetrics
}

// Config selects which event kinds are recorded and the ring buffer's
// capacity. A kind absent from Kinds is dropped before it ever reaches
// the buffer — IsRecordable lets the entry core skip building the event
// payload entirely when nobody is listening for that kind.
type Config struct {
	Capacity int
	Kinds    []entry.EventKind
}

// DefaultConfig records PUT/REMOVED/EXPIRED only, a 4096-entry buffer —
// READ events are the highest-volume kind and are opt-in.
func DefaultConfig() Config {
	return Config{
		Capacity: 4096,
		Kinds:    []entry.EventKind{entry.EventPut, entry.EventRemoved, entry.EventExpired},
	}
}

// New constructs a Recorder. m may be nil.
func New(cfg Config, m *metrics.EntryMetrics) *Recorder {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 4096
	}
	recordable := make(map[entry.EventKind]bool, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		recordable[k] = true
	}
	return &Recorder{
		buf:        make([]Record, cfg.Capacity),
		capacity:   cfg.Capacity,
		recordable: recordable,
		metrics:    m,
	}
}

// IsRecordable satisfies entry.EventRecorder.
func (r *Recorder) IsRecordable(kind entry.EventKind) bool {
	return r.recordable[kind]
}

// AddEvent satisfies entry.EventRecorder: appends to the ring buffer,
// overwriting the oldest record once at capacity, and increments the
// per-kind Prometheus counter.
func (r *Recorder) AddEvent(partitionID int, key string, nodeID uint64, ver version.Version, kind entry.EventKind, newVal any) {
	r.mu.Lock()
	r.buf[r.next] = Record{
		PartitionID: partitionID,
		Key:         key,
		NodeID:      nodeID,
		Version:     ver,
		Kind:        kind,
		NewValue:    newVal,
	}
	r.next = (r.next + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	r.mu.Unlock()

	r.metrics.RecordEvent(kindLabel(kind))
}

// Snapshot returns every currently buffered record, oldest first.
func (r *Recorder) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, r.size)
	if r.size < r.capacity {
		out = append(out, r.buf[:r.size]...)
		return out
	}
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Len returns the number of records currently buffered.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
