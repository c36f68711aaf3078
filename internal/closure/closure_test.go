package closure

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

func TestPlan_SimplePutOnEmptyRow(t *testing.T) {
	res := Plan(Row{}, UpdateParams{
		Kind:   KindUpdate,
		Value:  "v1",
		NewVer: version.Version{Order: 1},
		Now:    1000,
	})

	assert.Equal(t, OpPut, res.Op)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "v1", res.NewRow.Value)
	assert.True(t, res.NewRow.Present)
}

func TestPlan_StaleUpdateRejected(t *testing.T) {
	old := Row{Present: true, Value: "1", Version: version.Version{Order: 2}}
	res := Plan(old, UpdateParams{
		Kind:       KindUpdate,
		Value:      "0",
		NewVer:     version.Version{Order: 1},
		Primary:    true,
		Comparator: version.NewComparator(),
	})

	assert.Equal(t, OpNoop, res.Op)
	assert.Equal(t, OutcomeVersionCheckFailed, res.Outcome)
	assert.Equal(t, old, res.NewRow)
}

func TestPlan_EqualVersionTriggersStoreRefreshWhenWriteThrough(t *testing.T) {
	v := version.Version{Order: 5}
	old := Row{Present: true, Value: "x", Version: v}
	res := Plan(old, UpdateParams{
		Kind:         KindUpdate,
		Value:        "y",
		NewVer:       v,
		Primary:      true,
		WriteThrough: true,
		Comparator:   version.NewComparator(),
	})

	assert.Equal(t, OutcomeVersionCheckFailed, res.Outcome)
	assert.True(t, res.StoreRefresh)
}

func TestPlan_RemoveAlreadyAbsentIsNoVal(t *testing.T) {
	res := Plan(Row{}, UpdateParams{Kind: KindDelete, NewVer: version.Version{Order: 1}})
	assert.Equal(t, OpNoop, res.Op)
	assert.Equal(t, OutcomeRemoveNoVal, res.Outcome)
}

func TestPlan_RemoveExistingSucceeds(t *testing.T) {
	old := Row{Present: true, Value: "v", Version: version.Version{Order: 1}}
	res := Plan(old, UpdateParams{Kind: KindDelete, NewVer: version.Version{Order: 2}})
	assert.Equal(t, OpRemove, res.Op)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.False(t, res.NewRow.Present)
}

func TestPlan_FilterFailure(t *testing.T) {
	res := Plan(Row{}, UpdateParams{
		Kind:   KindUpdate,
		Value:  "v",
		NewVer: version.Version{Order: 1},
		Filter: func(old Row) bool { return false },
	})
	assert.Equal(t, OutcomeFilterFailed, res.Outcome)
	assert.Equal(t, OpNoop, res.Op)
}

func TestPlan_ProcessorNoOp(t *testing.T) {
	res := Plan(Row{Present: true, Value: "v"}, UpdateParams{
		Kind:      KindTransform,
		NewVer:    version.Version{Order: 1},
		Processor: func(current any, present bool) (any, bool) { return current, false },
	})
	assert.Equal(t, OutcomeInvokeNoOp, res.Outcome)
	assert.Equal(t, OpNoop, res.Op)
}

func TestPlan_ProcessorReturnsNilBecomesDelete(t *testing.T) {
	old := Row{Present: true, Value: "v"}
	res := Plan(old, UpdateParams{
		Kind:      KindTransform,
		NewVer:    version.Version{Order: 2},
		Processor: func(current any, present bool) (any, bool) { return nil, true },
	})
	assert.Equal(t, OpRemove, res.Op)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestPlan_ProcessorModifiesValue(t *testing.T) {
	res := Plan(Row{Present: true, Value: 1}, UpdateParams{
		Kind:      KindTransform,
		NewVer:    version.Version{Order: 2},
		Processor: func(current any, present bool) (any, bool) { return current.(int) + 1, true },
	})
	assert.Equal(t, OpPut, res.Op)
	assert.Equal(t, 2, res.NewRow.Value)
}

func TestPlan_InterceptorCancel(t *testing.T) {
	res := Plan(Row{}, UpdateParams{
		Kind:        KindUpdate,
		Value:       "v",
		NewVer:      version.Version{Order: 1},
		Interceptor: func(old Row, proposed any) (any, bool) { return nil, false },
	})
	assert.Equal(t, OutcomeInterceptorCancel, res.Outcome)
}

func TestPlan_InterceptorSubstitutesValue(t *testing.T) {
	res := Plan(Row{}, UpdateParams{
		Kind:        KindUpdate,
		Value:       "v",
		NewVer:      version.Version{Order: 1},
		Interceptor: func(old Row, proposed any) (any, bool) { return "substituted", true },
	})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "substituted", res.NewRow.Value)
}

func TestPlan_ConflictUseOld(t *testing.T) {
	old := Row{Present: true, Value: "old", Version: version.Version{Order: 1}}
	res := Plan(old, UpdateParams{
		Kind:   KindUpdate,
		Value:  "new",
		NewVer: version.Version{Order: 2},
		Conflict: func(old Row, newValue any, newVer version.Version) (ConflictOutcome, any) {
			return ConflictUseOld, nil
		},
	})
	assert.Equal(t, OutcomeConflictUseOld, res.Outcome)
	assert.Equal(t, old, res.NewRow)
}

func TestPlan_ConflictMerge(t *testing.T) {
	res := Plan(Row{Present: true, Value: "old"}, UpdateParams{
		Kind:   KindUpdate,
		Value:  "new",
		NewVer: version.Version{Order: 2},
		Conflict: func(old Row, newValue any, newVer version.Version) (ConflictOutcome, any) {
			return ConflictMerge, "merged"
		},
	})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "merged", res.NewRow.Value)
}

func TestPlan_ExplicitZeroTTLDemotesToDelete(t *testing.T) {
	old := Row{Present: true, Value: "v", Version: version.Version{Order: 1}}
	res := Plan(old, UpdateParams{
		Kind:           KindUpdate,
		Value:          "v2",
		NewVer:         version.Version{Order: 2},
		ExplicitTTL:    0,
		HasExplicitTTL: true,
	})
	assert.Equal(t, OpRemove, res.Op)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestPlan_TTLPolicyAppliedOnCreate(t *testing.T) {
	res := Plan(Row{}, UpdateParams{
		Kind:   KindUpdate,
		Value:  "v",
		NewVer: version.Version{Order: 1},
		Now:    100,
		TTLPolicy: func(old Row, forCreate bool) (int64, bool) {
			assert.True(t, forCreate)
			return 50, true
		},
	})
	assert.Equal(t, int64(50), res.NewRow.TTL)
	assert.Equal(t, int64(150), res.NewRow.ExpireAt)
}

func TestPlan_TTLUnchangedWhenPolicyAbstains(t *testing.T) {
	old := Row{Present: true, Value: "v", TTL: 77, ExpireAt: 999}
	res := Plan(old, UpdateParams{
		Kind:   KindUpdate,
		Value:  "v2",
		NewVer: version.Version{Order: 1},
		TTLPolicy: func(old Row, forCreate bool) (int64, bool) {
			return 0, false
		},
	})
	assert.Equal(t, int64(77), res.NewRow.TTL)
	assert.Equal(t, int64(999), res.NewRow.ExpireAt)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "SUCCESS", OutcomeSuccess.String())
	assert.Equal(t, "VERSION_CHECK_FAILED", OutcomeVersionCheckFailed.String())
}

func TestTreeOpString(t *testing.T) {
	assert.Equal(t, "PUT", OpPut.String())
	assert.Equal(t, "REMOVE", OpRemove.String())
	assert.Equal(t, "NOOP", OpNoop.String())
}
