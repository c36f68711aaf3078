package dr

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

func newTestPair(t *testing.T) (*Replicator, *Consumer) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := DefaultConfig()
	return New(client, cfg, nil), NewConsumer(client, cfg, nil)
}

func TestReplicate_PublishesRecordConsumerCanRead(t *testing.T) {
	repl, consumer := newTestPair(t)
	ver := version.Version{Order: 7, NodeOrder: 1, DataCenterID: 2}

	err := repl.Replicate("k1", "hello", 30*time.Second, time.Now().Add(30*time.Second), ver, 1, 5)
	require.NoError(t, err)

	records, nextID, err := consumer.ReadFrom(context.Background(), "0", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "k1", records[0].Key)
	assert.Equal(t, ver, records[0].ConflictVer)
	assert.Equal(t, uint8(1), records[0].DRType)
	assert.Equal(t, int64(5), records[0].TopologyVer)
	assert.NotEqual(t, "0", nextID)
}

func TestReadFrom_NoEntriesReturnsEmpty(t *testing.T) {
	_, consumer := newTestPair(t)
	records, nextID, err := consumer.ReadFrom(context.Background(), "0", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "0", nextID)
}

func TestReplicate_MultipleWritesPreserveOrder(t *testing.T) {
	repl, consumer := newTestPair(t)

	for i := 0; i < 3; i++ {
		ver := version.Version{Order: int64(i)}
		require.NoError(t, repl.Replicate("key", i, time.Second, time.Time{}, ver, 0, 1))
	}

	records, _, err := consumer.ReadFrom(context.Background(), "0", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, int64(i), rec.ConflictVer.Order)
	}
}
