// Package closure implements the stateless update-planning step that the
// cache entry core invokes under its per-entry lock (spec.md §4.F). Plan
// never touches a mutex or performs I/O itself; it only decides what the
// entry core should do next and returns a plan for the caller to apply.
package closure

import (
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// TreeOp names the row-store operation the entry core must apply once
// the plan is accepted.
type TreeOp int

const (
	OpNoop TreeOp = iota
	OpPut
	OpRemove
)

func (o TreeOp) String() string {
	switch o {
	case OpPut:
		return "PUT"
	case OpRemove:
		return "REMOVE"
	default:
		return "NOOP"
	}
}

// Outcome classifies how the plan resolved, mirroring spec.md §4.F's
// enum exactly so callers can switch on it for metrics and CQ gating.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRemoveNoVal
	OutcomeVersionCheckFailed
	OutcomeFilterFailed
	OutcomeInvokeNoOp
	OutcomeConflictUseOld
	OutcomeInterceptorCancel
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeRemoveNoVal:
		return "REMOVE_NO_VAL"
	case OutcomeVersionCheckFailed:
		return "VERSION_CHECK_FAILED"
	case OutcomeFilterFailed:
		return "FILTER_FAILED"
	case OutcomeInvokeNoOp:
		return "INVOKE_NO_OP"
	case OutcomeConflictUseOld:
		return "CONFLICT_USE_OLD"
	case OutcomeInterceptorCancel:
		return "INTERCEPTOR_CANCEL"
	default:
		return "UNKNOWN"
	}
}

// OpKind distinguishes the three caller-requested operation shapes the
// closure can plan for.
type OpKind int

const (
	KindUpdate OpKind = iota
	KindDelete
	KindTransform
)

// Row is the current persisted state the row store hands to the
// closure, or the zero value if the key is absent.
type Row struct {
	Present  bool
	Value    any
	Version  version.Version
	TTL      int64 // nanoseconds; 0 == eternal
	ExpireAt int64 // unix nanoseconds; 0 == eternal
}

// EntryProcessor is the TRANSFORM-op callback: given the current value
// (nil if absent), return the new value and whether it modified
// anything. A false modified return demotes the operation to NOOP
// (INVOKE_NO_OP).
type EntryProcessor func(current any, present bool) (newValue any, modified bool)

// Filter is evaluated before the write is accepted; returning false
// aborts the operation with FILTER_FAILED.
type Filter func(old Row) bool

// ConflictOutcome is what a DR conflict resolver decides between the old
// and incoming versioned values.
type ConflictOutcome int

const (
	ConflictUseNew ConflictOutcome = iota
	ConflictUseOld
	ConflictMerge
)

// ConflictResolver implements the DR conflict-resolution hook. merged is
// only consulted when the outcome is ConflictMerge.
type ConflictResolver func(old Row, newValue any, newVer version.Version) (outcome ConflictOutcome, merged any)

// Interceptor is the onBeforePut hook: given the proposed value it may
// veto (ok=false) or substitute a different value to store.
type Interceptor func(old Row, proposed any) (adopted any, ok bool)

// TTLPolicy computes the TTL to apply for a create or an update. A
// returned ttl of 0 means eternal; hasTTL false means "leave unchanged"
// (only meaningful on update).
type TTLPolicy func(old Row, forCreate bool) (ttl int64, hasTTL bool)

// UpdateParams bundles every input the nine-step algorithm consults.
// Unused collaborators may be left nil/zero to skip that step.
type UpdateParams struct {
	Kind   OpKind
	Value  any // ignored for KindDelete and KindTransform
	NewVer version.Version

	Primary      bool
	WriteThrough bool
	ReadThrough  bool

	Comparator version.Comparator
	IgnoreTime bool

	Processor  EntryProcessor
	Conflict   ConflictResolver
	Filter     Filter
	Interceptor Interceptor
	TTLPolicy  TTLPolicy

	// ExplicitTTL/HasExplicitTTL let the caller pin a TTL outright,
	// taking priority over TTLPolicy per step 8 of the algorithm.
	ExplicitTTL    int64
	HasExplicitTTL bool

	Now int64 // unix nanoseconds, supplied by the caller (entry core)
}

// UpdateResult is the closure's full verdict.
type UpdateResult struct {
	Op      TreeOp
	Outcome Outcome
	NewRow  Row
	// StoreRefresh is set when the closure detected an idempotent
	// version collision that should still trigger a write-through
	// refresh at the primary, without advancing the stored version.
	StoreRefresh bool
	// UpdateCounter is the partition's update counter value minted for
	// this update. Plan never sets it (it has no Partition access); the
	// entry core fills it in after a successful apply, once it has
	// called Partition.NextUpdateCounter itself.
	UpdateCounter int64
}

// Plan runs the nine-step update algorithm against old (the row the
// store currently holds, or its zero value if absent) and params,
// returning the operation the caller must apply. Plan performs no I/O
// and acquires no lock; the entry core is responsible for calling it
// while holding the per-entry monitor and for applying NewRow/Op
// afterward.
func Plan(old Row, params UpdateParams) UpdateResult {
	value := params.Value
	isDelete := params.Kind == KindDelete

	if params.Filter != nil && !params.Filter(old) {
		return UpdateResult{Op: OpNoop, Outcome: OutcomeFilterFailed, NewRow: old}
	}

	if params.Kind == KindTransform {
		newValue, modified := runProcessor(params.Processor, old)
		if !modified {
			return UpdateResult{Op: OpNoop, Outcome: OutcomeInvokeNoOp, NewRow: old}
		}
		if newValue == nil {
			isDelete = true
		} else {
			value = newValue
		}
	}

	if params.Conflict != nil {
		outcome, merged := params.Conflict(old, value, params.NewVer)
		switch outcome {
		case ConflictUseOld:
			refresh := params.Primary && params.WriteThrough && old.Version == params.NewVer
			return UpdateResult{Op: OpNoop, Outcome: OutcomeConflictUseOld, NewRow: old, StoreRefresh: refresh}
		case ConflictMerge:
			value = merged
		}
	} else if params.Primary && old.Present {
		cmp := params.Comparator.Compare(old.Version, params.NewVer, params.IgnoreTime)
		if cmp >= 0 {
			refresh := params.WriteThrough && cmp == 0
			return UpdateResult{Op: OpNoop, Outcome: OutcomeVersionCheckFailed, NewRow: old, StoreRefresh: refresh}
		}
	}

	if params.Interceptor != nil && !isDelete {
		adopted, ok := params.Interceptor(old, value)
		if !ok {
			return UpdateResult{Op: OpNoop, Outcome: OutcomeInterceptorCancel, NewRow: old}
		}
		value = adopted
	}

	if isDelete {
		if !old.Present {
			return UpdateResult{Op: OpNoop, Outcome: OutcomeRemoveNoVal, NewRow: old}
		}
		return UpdateResult{
			Op:      OpRemove,
			Outcome: OutcomeSuccess,
			NewRow:  Row{Present: false, Version: params.NewVer},
		}
	}

	ttl, expireAt := computeTTL(old, params)
	if ttl == 0 && params.HasExplicitTTL {
		// ZERO TTL demotes to DELETE per step 8.
		return UpdateResult{
			Op:      OpRemove,
			Outcome: OutcomeSuccess,
			NewRow:  Row{Present: false, Version: params.NewVer},
		}
	}

	return UpdateResult{
		Op:      OpPut,
		Outcome: OutcomeSuccess,
		NewRow: Row{
			Present:  true,
			Value:    value,
			Version:  params.NewVer,
			TTL:      ttl,
			ExpireAt: expireAt,
		},
	}
}

func runProcessor(p EntryProcessor, old Row) (any, bool) {
	if p == nil {
		return nil, false
	}
	return p(old.Value, old.Present)
}

// computeTTL resolves step 8: explicit > policy(for-update-or-create) >
// unchanged > eternal.
func computeTTL(old Row, params UpdateParams) (ttl int64, expireAt int64) {
	if params.HasExplicitTTL {
		return params.ExplicitTTL, expireAtFor(params.ExplicitTTL, params.Now)
	}
	if params.TTLPolicy != nil {
		forCreate := !old.Present
		if t, has := params.TTLPolicy(old, forCreate); has {
			return t, expireAtFor(t, params.Now)
		}
	}
	if old.Present {
		return old.TTL, old.ExpireAt
	}
	return 0, 0
}

func expireAtFor(ttl int64, now int64) int64 {
	if ttl <= 0 {
		return 0
	}
	return now + ttl
}
