package future

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gridcache/internal/entryerr"
)

func TestFuture_GetAfterDone(t *testing.T) {
	f := New()
	assert.False(t, f.IsDone())

	ok := f.OnDone("hello")
	assert.True(t, ok)
	assert.True(t, f.IsDone())

	result, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestFuture_SecondCompletionIgnored(t *testing.T) {
	f := New()
	assert.True(t, f.OnDone("first"))
	assert.False(t, f.OnDone("second"))
	assert.False(t, f.OnError(entryerr.ErrTimeout))

	result, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, "first", result)
}

func TestFuture_GetBlocksUntilDone(t *testing.T) {
	f := New()
	var wg sync.WaitGroup
	wg.Add(1)
	var result any
	var err error
	go func() {
		defer wg.Done()
		result, err = f.Get()
	}()

	time.Sleep(20 * time.Millisecond)
	f.OnDone(42)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestFuture_GetTimeoutExpires(t *testing.T) {
	f := New()
	_, err := f.GetTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, entryerr.ErrTimeout)
}

func TestFuture_GetTimeoutCompletesFirst(t *testing.T) {
	f := New()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.OnDone("done")
	}()
	result, err := f.GetTimeout(200 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestFuture_GetCtxCancelled(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.GetCtx(ctx, false)
	assert.ErrorIs(t, err, entryerr.ErrInterrupted)
}

func TestFuture_GetCtxIgnoreInterruptsWaitsForCompletion(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.OnDone("late")
		close(done)
	}()

	result, err := f.GetCtx(ctx, true)
	<-done
	assert.ErrorIs(t, err, entryerr.ErrInterrupted)
	assert.Equal(t, "late", result)
}

func TestFuture_OnErrorPropagates(t *testing.T) {
	f := New()
	f.OnError(entryerr.ErrEntryRemoved)
	_, err := f.Get()
	assert.ErrorIs(t, err, entryerr.ErrEntryRemoved)
}

func TestFuture_OnCancelled(t *testing.T) {
	f := New()
	f.OnCancelled()
	_, err := f.Get()
	assert.ErrorIs(t, err, entryerr.ErrCancelled)
}

func TestFuture_ListenAfterCompletionRunsSynchronously(t *testing.T) {
	f := New()
	f.OnDone("value")

	var got any
	f.Listen(func(result any, err error) {
		got = result
	})
	assert.Equal(t, "value", got)
}

func TestFuture_ListenBeforeCompletionFiresOnComplete(t *testing.T) {
	f := New()
	fired := make(chan any, 1)
	f.Listen(func(result any, err error) {
		fired <- result
	})

	f.OnDone("later")
	select {
	case v := <-fired:
		assert.Equal(t, "later", v)
	case <-time.After(time.Second):
		t.Fatal("listener never fired")
	}
}

func TestFuture_MultipleWaitersAllWake(t *testing.T) {
	f := New()
	const n = 20
	var wg sync.WaitGroup
	var successes atomic.Int64
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			result, err := f.Get()
			if err == nil && result == "fanout" {
				successes.Add(1)
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	f.OnDone("fanout")
	wg.Wait()
	assert.Equal(t, int64(n), successes.Load())
}

func TestFuture_Chain(t *testing.T) {
	f := New()
	chained := f.Chain(func(result any, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return result.(int) * 2, nil
	}, nil)

	f.OnDone(21)
	result, err := chained.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestFuture_ChainPropagatesError(t *testing.T) {
	f := New()
	chained := f.Chain(func(result any, err error) (any, error) {
		return nil, err
	}, nil)

	f.OnError(entryerr.ErrTimeout)
	_, err := chained.Get()
	assert.ErrorIs(t, err, entryerr.ErrTimeout)
}

func TestFuture_GetCtxUnregistersOnTimeout(t *testing.T) {
	f := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := f.GetCtx(ctx, false)
	assert.ErrorIs(t, err, entryerr.ErrInterrupted)

	// Future itself remains usable by a subsequent waiter after the
	// timed-out one unregisters.
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.OnDone("still works")
	}()
	result, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, "still works", result)
}
