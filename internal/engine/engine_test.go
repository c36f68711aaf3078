package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gridcache/gridconfig"
)

var testNamespaceSeq atomic.Int64

func testConfig(t *testing.T) gridconfig.Config {
	t.Helper()
	ns := fmt.Sprintf("engine_test_%d", testNamespaceSeq.Add(1))
	return gridconfig.Config{
		Profile: gridconfig.ProfileLite,
		Engine: gridconfig.EngineConfig{
			NodeOrder:       1,
			Partitions:      4,
			TTLScanInterval: 20 * time.Millisecond,
		},
		ExternalStore: gridconfig.ExternalStoreConfig{Enabled: false},
		WAL:           gridconfig.WALConfig{Enabled: false},
		Metrics:       gridconfig.MetricsConfig{Enabled: true, Namespace: ns},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestPutThenGet_RoundTripsValue(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Put(ctx, "k1", "v1"))

	val, found, err := eng.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v1", val)
}

func TestGet_MissingKeyReturnsNotFound(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	val, found, err := eng.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestRemove_DeletesPresentValue(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Put(ctx, "k1", "v1"))
	removed, err := eng.Remove(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, found, err := eng.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRemove_AbsentKeyReportsFalse(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	removed, err := eng.Remove(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestInvoke_TransformsExistingValue(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.Put(ctx, "counter", 1))

	result, err := eng.Invoke(ctx, "counter", func(current any, present bool) (any, bool) {
		n, _ := current.(int)
		return n + 1, true
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewRow.Value)

	val, found, err := eng.Get(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, val)
}

func TestStats_ReportsEntryCountPerPartition(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, eng.Put(ctx, k, k))
	}

	counts := eng.Stats()
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 4, total)
}

func TestPartitionFor_IsStableForSameKey(t *testing.T) {
	eng := newTestEngine(t)
	first := eng.partitionFor("stable-key")
	second := eng.partitionFor("stable-key")
	assert.Same(t, first, second)
}

func TestTTLScanner_ExpiresEntryPastDefaultTTL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.DefaultTTL = 10 * time.Millisecond
	cfg.Engine.TTLScanInterval = 5 * time.Millisecond

	eng, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	ctx := context.Background()
	require.NoError(t, eng.Put(ctx, "short-lived", "v"))

	require.Eventually(t, func() bool {
		_, found, err := eng.Get(ctx, "short-lived")
		return err == nil && !found
	}, time.Second, 5*time.Millisecond)
}
