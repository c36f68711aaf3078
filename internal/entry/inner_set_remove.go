package entry

import (
	"context"
	"time"

	"github.com/vitaliisemenov/gridcache/internal/closure"
	"github.com/vitaliisemenov/gridcache/internal/entryerr"
	"github.com/vitaliisemenov/gridcache/internal/future"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// Filter is evaluated under lock before a transactional set/remove is
// accepted; a nil Filter always passes.
type Filter func(present bool, val any, ver version.Version) bool

// SetParams bundles innerSet's inputs (spec.md §4.E "Transactional Set").
type SetParams struct {
	Value        any
	WriteVersion version.Version // zero Version means "mint one"
	Filter       Filter
	Internal     bool // internal (not user-visible) write, affects CQ listener selection
	// AttachedFuture, if non-nil, is completed with the SetResult/error
	// once the write (and its outside-the-lock side effects) finish.
	AttachedFuture *future.Future
	Now            time.Time
}

// RemoveParams bundles innerRemove's inputs.
type RemoveParams struct {
	Filter         Filter
	Internal       bool
	AttachedFuture *future.Future
	Now            time.Time
}

// WriteResult is the outcome of a transactional set/remove.
type WriteResult struct {
	Success  bool
	OldValue any
	OldFound bool
	// UpdateCounter is the partition's update counter value minted for
	// this write, or 0 if no Partition collaborator is configured.
	UpdateCounter int64
}

// InnerSet implements spec.md §4.E's transactional write path: evaluate
// the filter under lock, run the interceptor's onBeforePut veto/rewrite,
// stage the new value/version, release the lock, then write through the
// row store, append a WAL record, and fire CQ/onAfterPut/DR/future
// completion outside it.
func (e *Entry) InnerSet(ctx context.Context, params SetParams) (result WriteResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "rejected"
		if result.Success {
			outcome = "success"
		}
		e.collab.Metrics.RecordWrite(outcome, time.Since(start))
	}()

	e.mu.Lock()
	if err := e.checkNotObsoleteLocked(); err != nil {
		e.mu.Unlock()
		e.failFuture(params.AttachedFuture, err)
		return WriteResult{}, err
	}

	oldVal, oldFound := e.val, e.present
	oldVer := e.ver

	if params.Filter != nil && !params.Filter(e.present, e.val, e.ver) {
		e.mu.Unlock()
		e.completeFuture(params.AttachedFuture, WriteResult{Success: false, OldValue: oldVal, OldFound: oldFound})
		return WriteResult{Success: false, OldValue: oldVal, OldFound: oldFound}, nil
	}

	newVal := params.Value
	view := View{Key: e.key, OldValue: oldVal, OldVersion: oldVer, Present: oldFound}
	if e.collab.Interceptor != nil {
		adopted, ok, err := e.collab.Interceptor.OnBeforePut(view, newVal)
		if err != nil {
			e.mu.Unlock()
			wrapped := entryerr.NewInterceptorError("onBeforePut", err)
			e.failFuture(params.AttachedFuture, wrapped)
			return WriteResult{}, wrapped
		}
		if !ok {
			e.mu.Unlock()
			e.completeFuture(params.AttachedFuture, WriteResult{Success: false, OldValue: oldVal, OldFound: oldFound})
			return WriteResult{Success: false, OldValue: oldVal, OldFound: oldFound}, nil
		}
		newVal = adopted
	}

	newVer := params.WriteVersion
	if newVer.IsZero() {
		newVer = e.collab.VersionGen.NextFor(e.ver)
	}

	ttl, expireAt := e.resolveTTLForWriteLocked(params.Now, oldFound)

	e.present = true
	e.val = newVal
	e.ver = newVer
	if ttl > 0 {
		e.extras = e.extras.WithTTL(ttl, expireAt)
	} else {
		e.extras = e.extras.WithTTL(0, time.Time{})
	}

	listeners, hasListeners := e.cqListenersLocked(params.Internal)
	recordable := e.collab.Events != nil && e.collab.Events.IsRecordable(EventPut)
	partitionID := e.partitionID
	key := e.key
	nodeOrder := e.collab.NodeOrder
	e.mu.Unlock()

	if err := e.writeRowAndWAL(ctx, partitionID, key, writeSnapshot(newVal, newVer, ttl, expireAt), RecordUpdate, newVer); err != nil {
		e.failFuture(params.AttachedFuture, err)
		return WriteResult{}, err
	}

	var updateCounter int64
	if e.collab.Partition != nil {
		updateCounter = e.collab.Partition.NextUpdateCounter()
	}

	if recordable {
		e.collab.Events.AddEvent(partitionID, key, nodeOrder, newVer, EventPut, newVal)
	}
	if hasListeners && e.collab.CQ != nil {
		e.collab.CQ.OnEntryUpdated(listeners, key, newVal, oldVal)
	}
	if e.collab.Interceptor != nil {
		if err := e.collab.Interceptor.OnAfterPut(view, newVal); err != nil {
			e.logger.Warn("onAfterPut interceptor failed", "key", key, "err", err)
		}
	}
	e.replicateIfConfigured(key, newVal, ttl, expireAt, newVer)

	result = WriteResult{Success: true, OldValue: oldVal, OldFound: oldFound, UpdateCounter: updateCounter}
	e.completeFuture(params.AttachedFuture, result)
	return result, nil
}

// InnerRemove implements spec.md §4.E's transactional remove path: under
// lock, evaluate the filter and onBeforeRemove veto, then either mark the
// entry obsolete immediately (no active foreign lock candidates and
// deferred-delete disabled) or set the IS_DELETED tombstone.
func (e *Entry) InnerRemove(ctx context.Context, params RemoveParams) (result WriteResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "no_value"
		if result.Success {
			outcome = "success"
		}
		e.collab.Metrics.RecordRemove(outcome, time.Since(start))
	}()

	e.mu.Lock()
	if err := e.checkNotObsoleteLocked(); err != nil {
		e.mu.Unlock()
		e.failFuture(params.AttachedFuture, err)
		return WriteResult{}, err
	}

	oldVal, oldFound := e.val, e.present
	oldVer := e.ver

	if params.Filter != nil && !params.Filter(e.present, e.val, e.ver) {
		e.mu.Unlock()
		e.completeFuture(params.AttachedFuture, WriteResult{Success: false, OldValue: oldVal, OldFound: oldFound})
		return WriteResult{Success: false, OldValue: oldVal, OldFound: oldFound}, nil
	}

	view := View{Key: e.key, OldValue: oldVal, OldVersion: oldVer, Present: oldFound}
	if e.collab.Interceptor != nil {
		cancel, adopted, err := e.collab.Interceptor.OnBeforeRemove(view)
		if err != nil {
			e.mu.Unlock()
			wrapped := entryerr.NewInterceptorError("onBeforeRemove", err)
			e.failFuture(params.AttachedFuture, wrapped)
			return WriteResult{}, wrapped
		}
		if cancel {
			e.mu.Unlock()
			e.completeFuture(params.AttachedFuture, WriteResult{Success: false, OldValue: oldVal, OldFound: oldFound})
			return WriteResult{Success: false, OldValue: oldVal, OldFound: oldFound}, nil
		}
		if adopted != nil {
			oldVal = adopted
		}
	}

	if !oldFound {
		e.mu.Unlock()
		e.completeFuture(params.AttachedFuture, WriteResult{Success: false, OldValue: oldVal, OldFound: false})
		return WriteResult{Success: false, OldValue: oldVal, OldFound: false}, nil
	}

	newVer := e.collab.VersionGen.NextFor(e.ver)
	e.present = false
	e.val = nil
	e.ver = newVer

	if e.safeToObsoleteLocked(newVer) {
		e.markObsoleteLocked(newVer)
	} else {
		e.fl |= flagDeleted
	}

	listeners, hasListeners := e.cqListenersLocked(params.Internal)
	recordable := e.collab.Events != nil && e.collab.Events.IsRecordable(EventRemoved)
	partitionID := e.partitionID
	key := e.key
	nodeOrder := e.collab.NodeOrder
	e.mu.Unlock()

	if err := e.writeRemoveAndWAL(ctx, partitionID, key, newVer); err != nil {
		e.failFuture(params.AttachedFuture, err)
		return WriteResult{}, err
	}

	var updateCounter int64
	if e.collab.Partition != nil {
		updateCounter = e.collab.Partition.NextUpdateCounter()
	}
	if recordable {
		e.collab.Events.AddEvent(partitionID, key, nodeOrder, newVer, EventRemoved, nil)
	}
	if hasListeners && e.collab.CQ != nil {
		e.collab.CQ.OnEntryUpdated(listeners, key, nil, oldVal)
	}
	if e.collab.Interceptor != nil {
		if err := e.collab.Interceptor.OnAfterRemove(view); err != nil {
			e.logger.Warn("onAfterRemove interceptor failed", "key", key, "err", err)
		}
	}

	result = WriteResult{Success: true, OldValue: oldVal, OldFound: true, UpdateCounter: updateCounter}
	e.completeFuture(params.AttachedFuture, result)
	return result, nil
}

func (e *Entry) cqListenersLocked(internal bool) (ListenerSet, bool) {
	if e.collab.CQ == nil {
		return nil, false
	}
	return e.collab.CQ.UpdateListeners(internal, e.collab.Primary)
}

func (e *Entry) resolveTTLForWriteLocked(now time.Time, existed bool) (time.Duration, time.Time) {
	if e.collab.ExpiryPolicy == nil {
		return e.extras.TTL(), e.extras.ExpireAt()
	}
	var verdict TTLVerdict
	if existed {
		verdict = e.collab.ExpiryPolicy.ForUpdate()
	} else {
		verdict = e.collab.ExpiryPolicy.ForCreate()
	}
	switch verdict.Sentinel {
	case TTLExplicit:
		if verdict.Duration <= 0 {
			return 0, time.Time{}
		}
		return verdict.Duration, now.Add(verdict.Duration)
	case TTLZero:
		return 0, time.Time{}
	case TTLNotChanged:
		return e.extras.TTL(), e.extras.ExpireAt()
	default: // TTLEternal
		return 0, time.Time{}
	}
}

func writeSnapshot(val any, ver version.Version, ttl time.Duration, expireAt time.Time) rowSnapshot {
	return rowSnapshot{val: val, ver: ver, ttl: ttl, expireAt: expireAt}
}

type rowSnapshot struct {
	val      any
	ver      version.Version
	ttl      time.Duration
	expireAt time.Time
}

func (e *Entry) writeRowAndWAL(ctx context.Context, partitionID int, key string, snap rowSnapshot, kind DataRecordKind, ver version.Version) error {
	var expireNano int64
	if !snap.expireAt.IsZero() {
		expireNano = snap.expireAt.UnixNano()
	}
	row := closure.Row{Present: true, Value: snap.val, Version: snap.ver, TTL: int64(snap.ttl), ExpireAt: expireNano}
	if err := e.collab.RowStore.Update(ctx, partitionID, key, row); err != nil {
		return entryerr.NewStorageError("update", err)
	}
	if e.collab.WAL != nil {
		if err := e.collab.WAL.Log(DataRecord{Kind: kind, Key: key, Value: snap.val, Version: ver, Partition: partitionID}); err != nil {
			return entryerr.NewStorageError("wal", err)
		}
	}
	e.writeThroughIfConfigured(ctx, key, snap.val, ver)
	return nil
}

func (e *Entry) writeRemoveAndWAL(ctx context.Context, partitionID int, key string, ver version.Version) error {
	if err := e.collab.RowStore.Remove(ctx, partitionID, key); err != nil {
		return entryerr.NewStorageError("remove", err)
	}
	if e.collab.WAL != nil {
		if err := e.collab.WAL.Log(DataRecord{Kind: RecordDelete, Key: key, Version: ver, Partition: partitionID}); err != nil {
			return entryerr.NewStorageError("wal", err)
		}
	}
	if e.collab.WriteThrough && e.collab.ExternalStore != nil {
		if err := e.collab.ExternalStore.Remove(ctx, key); err != nil {
			e.logger.Warn("write-through remove failed", "key", key, "err", err)
		}
	}
	return nil
}

// writeThroughIfConfigured pushes to the external store outside the
// entry lock; failures are logged, never rolled back (spec.md §9(a):
// the transaction layer owns compensation).
func (e *Entry) writeThroughIfConfigured(ctx context.Context, key string, val any, ver version.Version) {
	if !e.collab.WriteThrough || e.collab.ExternalStore == nil {
		return
	}
	if err := e.collab.ExternalStore.Put(ctx, key, val, ver); err != nil {
		e.logger.Warn("write-through put failed", "key", key, "err", err)
	}
}

func (e *Entry) replicateIfConfigured(key string, val any, ttl time.Duration, expireAt time.Time, ver version.Version) {
	if e.collab.DR == nil {
		return
	}
	conflictVer := ver
	if ver.Conflict != nil {
		conflictVer = *ver.Conflict
	}
	if err := e.collab.DR.Replicate(key, val, ttl, expireAt, conflictVer, uint8(ver.DataCenterID), ver.TopologyVersion); err != nil {
		e.logger.Warn("DR replicate failed", "key", key, "err", err)
	}
}

func (e *Entry) failFuture(f *future.Future, err error) {
	if f != nil {
		f.OnError(err)
	}
}

func (e *Entry) completeFuture(f *future.Future, result WriteResult) {
	if f != nil {
		f.OnDone(result)
	}
}
