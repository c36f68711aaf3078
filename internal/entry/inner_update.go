package entry

import (
	"context"
	"time"

	"github.com/vitaliisemenov/gridcache/internal/closure"
	"github.com/vitaliisemenov/gridcache/internal/entryerr"
	"github.com/vitaliisemenov/gridcache/internal/future"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// UpdateParams bundles innerUpdate's inputs (spec.md §4.E "Atomic
// Update"). NewVer lets a caller applying a replicated write supply the
// version it arrived with; the zero Version mints a fresh one from the
// entry's own generator, matching a purely local atomic put/remove.
type UpdateParams struct {
	Kind        closure.OpKind
	Value       any
	NewVer      version.Version
	Processor   closure.EntryProcessor
	Conflict    closure.ConflictResolver
	Filter      closure.Filter
	Interceptor closure.Interceptor
	TTLPolicy   closure.TTLPolicy

	ExplicitTTL    time.Duration
	HasExplicitTTL bool

	Internal       bool
	AttachedFuture *future.Future
	Now            time.Time
}

// InnerUpdate implements spec.md §4.E's lock-free atomic update path:
// build the row snapshot closure.Plan needs, invoke Plan once under the
// entry lock, then apply whichever row-store/WAL/notification side
// effects the outcome calls for, outside the lock.
func (e *Entry) InnerUpdate(ctx context.Context, params UpdateParams) (result closure.UpdateResult, err error) {
	start := time.Now()
	defer func() {
		dur := time.Since(start)
		switch result.Op {
		case closure.OpPut:
			outcome := "rejected"
			if result.Outcome == closure.OutcomeSuccess {
				outcome = "success"
			}
			e.collab.Metrics.RecordWrite(outcome, dur)
		case closure.OpRemove:
			outcome := "rejected"
			if result.Outcome == closure.OutcomeSuccess {
				outcome = "success"
			}
			e.collab.Metrics.RecordRemove(outcome, dur)
		}
	}()

	e.mu.Lock()
	if cerr := e.checkNotObsoleteLocked(); cerr != nil {
		e.mu.Unlock()
		e.failFuture(params.AttachedFuture, cerr)
		return closure.UpdateResult{}, cerr
	}

	oldRow := e.rowLocked()
	oldVal := e.val

	newVer := params.NewVer
	if newVer.IsZero() {
		newVer = e.collab.VersionGen.NextFor(e.ver)
	}

	plan := closure.Plan(oldRow, closure.UpdateParams{
		Kind:           params.Kind,
		Value:          params.Value,
		NewVer:         newVer,
		Primary:        e.collab.Primary,
		WriteThrough:   e.collab.WriteThrough,
		ReadThrough:    e.collab.ReadThrough,
		Comparator:     e.comparator,
		Processor:      params.Processor,
		Conflict:       params.Conflict,
		Filter:         params.Filter,
		Interceptor:    params.Interceptor,
		TTLPolicy:      params.TTLPolicy,
		ExplicitTTL:    int64(params.ExplicitTTL),
		HasExplicitTTL: params.HasExplicitTTL,
		Now:            params.Now.UnixNano(),
	})

	if plan.Outcome == closure.OutcomeSuccess {
		e.applyRowLocked(plan.NewRow)
		if plan.Op == closure.OpRemove {
			if e.safeToObsoleteLocked(plan.NewRow.Version) {
				e.markObsoleteLocked(plan.NewRow.Version)
			} else {
				e.fl |= flagDeleted
			}
		}
	}

	listeners, hasListeners := e.cqListenersLocked(params.Internal)
	partitionID, key, nodeOrder := e.partitionID, e.key, e.collab.NodeOrder
	e.mu.Unlock()

	if plan.Outcome != closure.OutcomeSuccess {
		e.applyStoreRefreshIfNeeded(ctx, key, plan)
		e.completeFuture(params.AttachedFuture, plan)
		return plan, nil
	}

	if err := e.applyPlan(ctx, partitionID, key, plan); err != nil {
		e.failFuture(params.AttachedFuture, err)
		return closure.UpdateResult{}, err
	}

	if e.collab.Partition != nil {
		plan.UpdateCounter = e.collab.Partition.NextUpdateCounter()
	}

	e.emitPlanEvents(partitionID, key, nodeOrder, plan)
	if hasListeners && e.collab.CQ != nil {
		var newVal any
		if plan.NewRow.Present {
			newVal = plan.NewRow.Value
		}
		e.collab.CQ.OnEntryUpdated(listeners, key, newVal, oldVal)
	}
	e.completeFuture(params.AttachedFuture, plan)
	return plan, nil
}

func (e *Entry) applyPlan(ctx context.Context, partitionID int, key string, plan closure.UpdateResult) error {
	switch plan.Op {
	case closure.OpPut:
		if err := e.collab.RowStore.Update(ctx, partitionID, key, plan.NewRow); err != nil {
			return entryerr.NewStorageError("update", err)
		}
		if e.collab.WAL != nil {
			if err := e.collab.WAL.Log(DataRecord{Kind: RecordUpdate, Key: key, Value: plan.NewRow.Value, Version: plan.NewRow.Version, Partition: partitionID}); err != nil {
				return entryerr.NewStorageError("wal", err)
			}
		}
		e.writeThroughIfConfigured(ctx, key, plan.NewRow.Value, plan.NewRow.Version)
	case closure.OpRemove:
		if err := e.collab.RowStore.Remove(ctx, partitionID, key); err != nil {
			return entryerr.NewStorageError("remove", err)
		}
		if e.collab.WAL != nil {
			if err := e.collab.WAL.Log(DataRecord{Kind: RecordDelete, Key: key, Version: plan.NewRow.Version, Partition: partitionID}); err != nil {
				return entryerr.NewStorageError("wal", err)
			}
		}
		if e.collab.WriteThrough && e.collab.ExternalStore != nil {
			if err := e.collab.ExternalStore.Remove(ctx, key); err != nil {
				e.logger.Warn("write-through remove failed", "key", key, "err", err)
			}
		}
	}
	return nil
}

func (e *Entry) applyStoreRefreshIfNeeded(ctx context.Context, key string, plan closure.UpdateResult) {
	if !plan.StoreRefresh || e.collab.ExternalStore == nil {
		return
	}
	if err := e.collab.ExternalStore.Put(ctx, key, plan.NewRow.Value, plan.NewRow.Version); err != nil {
		e.logger.Warn("store refresh failed", "key", key, "err", err)
	}
}

func (e *Entry) emitPlanEvents(partitionID int, key string, nodeOrder uint64, plan closure.UpdateResult) {
	if e.collab.Events == nil {
		return
	}
	switch plan.Op {
	case closure.OpPut:
		if e.collab.Events.IsRecordable(EventPut) {
			e.collab.Events.AddEvent(partitionID, key, nodeOrder, plan.NewRow.Version, EventPut, plan.NewRow.Value)
		}
	case closure.OpRemove:
		if e.collab.Events.IsRecordable(EventRemoved) {
			e.collab.Events.AddEvent(partitionID, key, nodeOrder, plan.NewRow.Version, EventRemoved, nil)
		}
	}
}
