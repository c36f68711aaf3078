package entry

import (
	"context"
	"time"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

// EvictInternal implements spec.md §4.E's eviction path: marks the entry
// obsolete provided it has no readers (approximated here as "no active
// lock candidates") and, with deferred-delete configured, is not
// currently IS_DELETED. Returns whether it evicted.
func (e *Entry) EvictInternal(obsoleteVer version.Version, filter Filter) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isObsoleteLocked() {
		e.collab.Metrics.RecordEviction("blocked")
		return false
	}
	if filter != nil && !filter(e.present, e.val, e.ver) {
		e.collab.Metrics.RecordEviction("blocked")
		return false
	}
	if e.collab.DeferredDelete && e.fl.has(flagDeleted) {
		e.collab.Metrics.RecordEviction("blocked")
		return false
	}
	if !e.extras.Candidates().IsEmpty() {
		e.collab.Metrics.RecordEviction("blocked")
		return false
	}
	e.markObsoleteLocked(obsoleteVer)
	e.collab.Metrics.RecordEviction("evicted")
	return true
}

// SwapEntry is the snapshot EvictInBatchInternal prepares for the batch
// swap writer before clearing the entry's in-heap state.
type SwapEntry struct {
	Key      string
	Value    any
	Version  version.Version
	TTL      time.Duration
	ExpireAt time.Time
}

// EvictInBatchInternal behaves like EvictInternal but additionally
// returns a SwapEntry snapshot (key, value, version, ttl, expire-time)
// for the batch swap writer, taken at the instant of eviction.
func (e *Entry) EvictInBatchInternal(obsoleteVer version.Version, filter Filter) (SwapEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isObsoleteLocked() {
		e.collab.Metrics.RecordEviction("blocked")
		return SwapEntry{}, false
	}
	if filter != nil && !filter(e.present, e.val, e.ver) {
		e.collab.Metrics.RecordEviction("blocked")
		return SwapEntry{}, false
	}
	if e.collab.DeferredDelete && e.fl.has(flagDeleted) {
		e.collab.Metrics.RecordEviction("blocked")
		return SwapEntry{}, false
	}
	if !e.extras.Candidates().IsEmpty() {
		e.collab.Metrics.RecordEviction("blocked")
		return SwapEntry{}, false
	}

	snap := SwapEntry{
		Key:      e.key,
		Value:    e.val,
		Version:  e.ver,
		TTL:      e.extras.TTL(),
		ExpireAt: e.extras.ExpireAt(),
	}
	e.markObsoleteLocked(obsoleteVer)
	e.collab.Metrics.RecordEviction("evicted")
	return snap, true
}

// ExpirySnapshot is a point-in-time read of the fields an external
// TTL-scanner needs to decide whether an entry is due for
// OnTTLExpired, without mutating anything.
type ExpirySnapshot struct {
	Present  bool
	Version  version.Version
	ExpireAt time.Time
}

// PeekExpiry returns the entry's current presence/version/expire-time
// under lock, for a TTL-scanner to test against wall-clock time before
// calling OnTTLExpired. A zero ExpireAt means eternal (never due).
func (e *Entry) PeekExpiry() ExpirySnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ExpirySnapshot{Present: e.present, Version: e.ver, ExpireAt: e.extras.ExpireAt()}
}

// InitialValueParams bundles initialValue's inputs (spec.md §4.E
// "Initial Load").
type InitialValueParams struct {
	Value        any
	Ver          version.Version
	TTL          time.Duration
	ExpireAt     time.Time
	Transactional bool // transactional cache: install iff incoming ver compares greater
}

// InitialValue installs a value loaded from preload or persistence. The
// install rule: the entry is new, OR (atomic cache) the incoming version
// strictly exceeds the current one per the comparator, OR (transactional
// cache) the incoming version simply compares greater. WAL-logs a CREATE
// record when WAL is enabled and this is not a near cache. Fires CQ
// unless the installed value is nil.
func (e *Entry) InitialValue(ctx context.Context, params InitialValueParams) (bool, error) {
	e.mu.Lock()

	// Atomic and transactional caches both install on "incoming version
	// compares greater than current" — the spec's wording differs
	// ("strictly exceeds" vs. "compares greater") but both reduce to the
	// same strict comparator check; params.Transactional is retained on
	// the signature for callers that need to record which path installed
	// the value.
	installed := e.isNewLocked() || e.comparator.Greater(params.Ver, e.ver, false)
	if !installed {
		e.mu.Unlock()
		return false, nil
	}

	e.present = params.Value != nil
	e.val = params.Value
	e.ver = params.Ver
	if params.TTL > 0 {
		e.extras = e.extras.WithTTL(params.TTL, params.ExpireAt)
	}
	key := e.key
	partitionID := e.partitionID
	e.mu.Unlock()

	if e.collab.WAL != nil && !e.collab.NearCache {
		if err := e.collab.WAL.Log(DataRecord{Kind: RecordCreate, Key: key, Value: params.Value, Version: params.Ver, Partition: partitionID}); err != nil {
			return false, err
		}
	}

	if params.Value != nil && e.collab.CQ != nil {
		listeners, hasListeners := e.collab.CQ.UpdateListeners(true, e.collab.Primary)
		if hasListeners {
			e.collab.CQ.OnEntryUpdated(listeners, key, params.Value, nil)
		}
	}

	return true, nil
}
