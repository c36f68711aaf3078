package entry

import (
	"context"
	"time"

	"github.com/vitaliisemenov/gridcache/internal/entryerr"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// GetParams bundles innerGet's inputs (spec.md §4.E "Read").
type GetParams struct {
	ReadThrough bool
	Record      bool // emit a READ event if the collaborator allows it
	Now         time.Time
}

// GetResult is what innerGet hands back to the caller.
type GetResult struct {
	Value   any
	Found   bool
	Expired bool
}

// InnerGet implements spec.md §4.E's read path: verify not obsolete,
// lazily swap in the off-heap row on first access, expire if due, and
// optionally read-through to the external store when absent.
func (e *Entry) InnerGet(ctx context.Context, params GetParams) (result GetResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "miss"
		switch {
		case result.Expired:
			outcome = "expired"
		case result.Found:
			outcome = "hit"
		}
		e.collab.Metrics.RecordRead(outcome, time.Since(start))
	}()

	e.mu.Lock()
	if err := e.checkNotObsoleteLocked(); err != nil {
		e.mu.Unlock()
		return GetResult{}, err
	}

	if !e.present && e.isNewLocked() && !e.fl.has(flagUnswapped) {
		row, err := e.collab.RowStore.Read(ctx, e.partitionID, e.key)
		if err != nil {
			e.mu.Unlock()
			return GetResult{}, entryerr.NewStorageError("read", err)
		}
		e.fl |= flagUnswapped
		if row.Present {
			e.applyRowLocked(row)
		}
	}

	if e.present && e.isExpiredLocked(params.Now) {
		expiredVal := e.val
		e.expireLocked(params.Now)
		e.mu.Unlock()
		e.publishExpired(expiredVal)
		return GetResult{Found: false, Expired: true}, nil
	}

	found := e.present
	val := e.val
	recordable := params.Record && e.collab.Events != nil && e.collab.Events.IsRecordable(EventRead)
	ver := e.ver
	e.mu.Unlock()

	if recordable {
		e.collab.Events.AddEvent(e.partitionID, e.key, e.collab.NodeOrder, ver, EventRead, val)
	}

	if found {
		return GetResult{Value: val, Found: true}, nil
	}

	if !params.ReadThrough || e.collab.ExternalStore == nil {
		return GetResult{Found: false}, nil
	}

	// Step 3: release lock, read-through, reacquire.
	loadedVal, loadedFound, err := e.collab.ExternalStore.Load(ctx, e.key)
	if err != nil {
		return GetResult{}, entryerr.NewStorageError("read-through", err)
	}
	if !loadedFound {
		return GetResult{Found: false}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkNotObsoleteLocked(); err != nil {
		return GetResult{}, err
	}
	// Step 4: only install if nothing else wrote to the entry while the
	// lock was released.
	if e.ver != ver {
		if e.present {
			return GetResult{Value: e.val, Found: true}, nil
		}
		return GetResult{Found: false}, nil
	}

	newVer := e.collab.VersionGen.NextForLoad(e.ver)
	ttl := e.forCreateTTL()
	e.present = true
	e.val = loadedVal
	e.ver = newVer
	if ttl > 0 {
		e.extras = e.extras.WithTTL(ttl, params.Now.Add(ttl))
	}
	return GetResult{Value: loadedVal, Found: true}, nil
}

// forCreateTTL consults the expiry policy's ForCreate verdict, returning
// 0 for eternal/not-changed/zero.
func (e *Entry) forCreateTTL() time.Duration {
	if e.collab.ExpiryPolicy == nil {
		return 0
	}
	v := e.collab.ExpiryPolicy.ForCreate()
	if v.Sentinel != TTLExplicit {
		return 0
	}
	return v.Duration
}

// isExpiredLocked reports whether the entry's expire-time has elapsed.
// Must be called with mu held.
func (e *Entry) isExpiredLocked(now time.Time) bool {
	expireAt := e.extras.ExpireAt()
	return !expireAt.IsZero() && !expireAt.After(now)
}

// expireLocked clears the value and either marks obsolete or sets the
// deferred-delete tombstone, the same obsolete/deferred split InnerRemove
// makes. Must be called with mu held.
func (e *Entry) expireLocked(now time.Time) {
	e.present = false
	e.val = nil
	if e.safeToObsoleteLocked(e.ver) {
		obsoleteVer := e.collab.VersionGen.NextFor(e.ver)
		e.markObsoleteLocked(obsoleteVer)
		return
	}
	e.fl |= flagDeleted
}

func (e *Entry) publishExpired(oldVal any) {
	e.collab.Metrics.RecordExpiration()
	if e.collab.Events != nil && e.collab.Events.IsRecordable(EventExpired) {
		e.collab.Events.AddEvent(e.partitionID, e.key, e.collab.NodeOrder, e.ver, EventExpired, nil)
	}
	if e.collab.CQ != nil {
		e.collab.CQ.OnEntryExpired(e.key, oldVal)
	}
}

// OnTTLExpired is the external TTL-scanner's entry point (spec.md §4.E
// "Expiration"): clears val, fires EXPIRED, notifies CQ, then obsoletes
// or defers per the deferred-delete setting. obsoleteVer is the version
// the scanner wants to stamp the transition with.
func (e *Entry) OnTTLExpired(obsoleteVer version.Version) error {
	e.mu.Lock()
	if err := e.checkNotObsoleteLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if !e.present {
		e.mu.Unlock()
		return nil
	}
	oldVal := e.val
	e.present = false
	e.val = nil
	if e.safeToObsoleteLocked(e.ver) {
		e.markObsoleteLocked(obsoleteVer)
	} else {
		e.fl |= flagDeleted
	}
	e.mu.Unlock()

	e.publishExpired(oldVal)
	return nil
}
