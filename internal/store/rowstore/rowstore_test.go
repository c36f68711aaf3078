package rowstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gridcache/internal/closure"
)

type fakeExternalStore struct {
	rows map[string]closure.Row
}

func newFakeExternalStore() *fakeExternalStore {
	return &fakeExternalStore{rows: make(map[string]closure.Row)}
}

func (f *fakeExternalStore) Load(ctx context.Context, key string) (closure.Row, bool, error) {
	row, ok := f.rows[key]
	return row, ok, nil
}

func (f *fakeExternalStore) Put(ctx context.Context, key string, row closure.Row) error {
	f.rows[key] = row
	return nil
}

func (f *fakeExternalStore) Remove(ctx context.Context, key string) error {
	delete(f.rows, key)
	return nil
}

func TestRead_MissOnEmptyStoreReturnsZeroRow(t *testing.T) {
	s, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	row, err := s.Read(context.Background(), 0, "k1")
	require.NoError(t, err)
	assert.False(t, row.Present)
}

func TestUpdate_ThenReadHitsL1(t *testing.T) {
	s, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	row := closure.Row{Present: true, Value: "v"}
	require.NoError(t, s.Update(context.Background(), 0, "k2", row))

	got, err := s.Read(context.Background(), 0, "k2")
	require.NoError(t, err)
	assert.Equal(t, row, got)
	assert.Equal(t, int64(1), s.Stats().L1Hits)
}

func TestRead_L2HitPopulatesL1(t *testing.T) {
	l2 := newFakeExternalStore()
	l2.rows["k3"] = closure.Row{Present: true, Value: "from-l2"}

	s, err := New(DefaultConfig(), l2, nil)
	require.NoError(t, err)

	got, err := s.Read(context.Background(), 0, "k3")
	require.NoError(t, err)
	assert.Equal(t, "from-l2", got.Value)
	assert.Equal(t, int64(1), s.Stats().L2Hits)

	// second read now hits L1, not L2.
	_, err = s.Read(context.Background(), 0, "k3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Stats().L2Hits)
}

func TestRemove_ClearsBothTiers(t *testing.T) {
	l2 := newFakeExternalStore()
	s, err := New(DefaultConfig(), l2, nil)
	require.NoError(t, err)

	require.NoError(t, s.Update(context.Background(), 0, "k4", closure.Row{Present: true, Value: "v"}))
	require.NoError(t, s.Remove(context.Background(), 0, "k4"))

	got, err := s.Read(context.Background(), 0, "k4")
	require.NoError(t, err)
	assert.False(t, got.Present)
	_, found, _ := l2.Load(context.Background(), "k4")
	assert.False(t, found)
}

func TestInvoke_AppliesPlanAndPersists(t *testing.T) {
	s, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	result, err := s.Invoke(context.Background(), 0, "k5", func(old closure.Row) closure.UpdateResult {
		assert.False(t, old.Present)
		return closure.UpdateResult{Op: closure.OpPut, Outcome: closure.OutcomeSuccess, NewRow: closure.Row{Present: true, Value: "new"}}
	})
	require.NoError(t, err)
	assert.Equal(t, closure.OutcomeSuccess, result.Outcome)

	got, err := s.Read(context.Background(), 0, "k5")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Value)
}

func TestInvoke_RemoveOpClearsRow(t *testing.T) {
	s, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Update(context.Background(), 0, "k6", closure.Row{Present: true, Value: "v"}))

	_, err = s.Invoke(context.Background(), 0, "k6", func(old closure.Row) closure.UpdateResult {
		return closure.UpdateResult{Op: closure.OpRemove, Outcome: closure.OutcomeSuccess}
	})
	require.NoError(t, err)

	got, err := s.Read(context.Background(), 0, "k6")
	require.NoError(t, err)
	assert.False(t, got.Present)
}
