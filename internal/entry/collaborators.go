// Package entry implements the per-key cache entry state machine
// (spec.md §4.E): the state (value, version, extras, flags) protected by
// a per-entry mutex, and the read/write/remove/invoke/expire/evict
// operations that mutate it. Every external dependency — row store,
// version generator, expiry policy, interceptor, continuous-query
// registry, WAL, external store, event recorder, partition counter, DR
// replicator — is a constructor-injected interface so the entry core
// itself never imports a concrete storage or transport package.
package entry

import (
	"context"
	"time"

	"github.com/vitaliisemenov/gridcache/internal/closure"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// RowStore is the off-heap row collaborator (spec.md §6).
type RowStore interface {
	Read(ctx context.Context, partitionID int, key string) (closure.Row, error)
	Update(ctx context.Context, partitionID int, key string, row closure.Row) error
	Remove(ctx context.Context, partitionID int, key string) error
	// Invoke supplies the current row to plan and atomically applies
	// whatever row-store operation plan's result calls for.
	Invoke(ctx context.Context, partitionID int, key string, plan func(old closure.Row) closure.UpdateResult) (closure.UpdateResult, error)
}

// TTLSentinel classifies an ExpiryPolicy verdict per spec.md §6.
type TTLSentinel int

const (
	TTLExplicit TTLSentinel = iota
	TTLEternal
	TTLNotChanged
	TTLZero
)

// TTLVerdict is what an ExpiryPolicy hook returns.
type TTLVerdict struct {
	Sentinel TTLSentinel
	Duration time.Duration // only meaningful when Sentinel == TTLExplicit
}

// ExpiryPolicy supplies the TTL to apply for create/update/access.
type ExpiryPolicy interface {
	ForCreate() TTLVerdict
	ForUpdate() TTLVerdict
	ForAccess() TTLVerdict
}

// View is what interceptor hooks see: the entry's state immediately
// before the hook fires.
type View struct {
	Key        string
	OldValue   any
	OldVersion version.Version
	Present    bool
}

// Interceptor is the optional onBefore*/onAfter* collaborator. onBefore*
// errors veto the operation; onAfter* errors are logged and swallowed by
// the entry core (spec.md §7).
type Interceptor interface {
	OnBeforePut(view View, newVal any) (val any, ok bool, err error)
	OnBeforeRemove(view View) (cancel bool, val any, err error)
	OnAfterPut(view View, newVal any) error
	OnAfterRemove(view View) error
}

// ListenerSet is an opaque handle a CQRegistry hands back from
// UpdateListeners and receives again in the notify calls; the entry core
// never looks inside it.
type ListenerSet any

// CQRegistry is the continuous-query fan-out collaborator.
type CQRegistry interface {
	UpdateListeners(internal, primary bool) (ListenerSet, bool)
	OnEntryUpdated(set ListenerSet, key string, newVal, oldVal any)
	OnEntryExpired(key string, val any)
}

// DataRecordKind tags a WAL record.
type DataRecordKind int

const (
	RecordCreate DataRecordKind = iota
	RecordUpdate
	RecordDelete
)

// DataRecord is what the entry core appends to the WAL.
type DataRecord struct {
	Kind      DataRecordKind
	Key       string
	Value     any
	Version   version.Version
	Partition int
}

// WAL is the write-ahead log collaborator. A no-op implementation is
// valid when WAL is disabled.
type WAL interface {
	Log(rec DataRecord) error
}

// ExternalStore is the write-through/read-through collaborator.
type ExternalStore interface {
	Load(ctx context.Context, key string) (val any, found bool, err error)
	Put(ctx context.Context, key string, val any, ver version.Version) error
	Remove(ctx context.Context, key string) error
}

// EventKind is one of the event-bus kinds named in spec.md §6.
type EventKind int

const (
	EventRead EventKind = iota
	EventPut
	EventRemoved
	EventExpired
	EventLocked
	EventUnlocked
)

// EventRecorder is the event-bus collaborator.
type EventRecorder interface {
	IsRecordable(kind EventKind) bool
	AddEvent(partitionID int, key string, nodeID uint64, ver version.Version, kind EventKind, newVal any)
}

// Partition supplies the entry's monotone per-partition update counter.
type Partition interface {
	NextUpdateCounter() int64
}

// DRReplicator is the optional cross-datacenter replication
// collaborator.
type DRReplicator interface {
	Replicate(key string, val any, ttl time.Duration, expireAt time.Time, conflictVer version.Version, drType uint8, topVer int64) error
}
