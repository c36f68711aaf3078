// Package future implements the single-assignment "future adapter"
// primitive (spec.md §4.C) used to coordinate asynchronous callers of the
// cache entry's update pipelines. State transitions are lock-free,
// compare-and-swap over a single atomic.Pointer; registration of a new
// waiter or listener is retried until the CAS succeeds.
package future

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/gridcache/internal/entryerr"
)

// state tags what a Future currently holds.
type state int

const (
	stateInit state = iota
	stateWaiting
	stateValue
	stateError
	stateCancelled
)

type waitNode struct {
	ch   chan struct{}
	next *waitNode
}

type listenerNode struct {
	cb   func(result any, err error)
	next *listenerNode
}

// box is the atomically-swapped payload: either the waiter/listener
// stack (non-terminal) or the terminal result.
type box struct {
	st       state
	waiters  *waitNode
	listener *listenerNode
	result   any
	err      error
}

// Future is a single-assignment awaitable result. Zero value is not
// usable; construct with New.
type Future struct {
	id    uuid.UUID
	slot  atomic.Pointer[box]
}

// New returns a fresh, non-terminal Future.
func New() *Future {
	f := &Future{id: uuid.New()}
	f.slot.Store(&box{st: stateInit})
	return f
}

// ID returns the future's tracing id (debug/observability only).
func (f *Future) ID() uuid.UUID { return f.id }

// OnDone transitions the future to a successful terminal state carrying
// result. Returns whether this call effected the transition — false if
// the future was already terminal, in which case the original result is
// preserved.
func (f *Future) OnDone(result any) bool {
	return f.complete(&box{st: stateValue, result: result})
}

// OnError transitions the future to a failed terminal state carrying err.
func (f *Future) OnError(err error) bool {
	return f.complete(&box{st: stateError, err: err})
}

// OnCancelled transitions the future to CANCELLED.
func (f *Future) OnCancelled() bool {
	return f.complete(&box{st: stateCancelled, err: entryerr.ErrCancelled})
}

// complete CASes the terminal box in, then wakes every waiter/listener
// that had registered against the pre-terminal box. A concurrent
// registration may race and observe the new terminal box directly
// instead (registration always re-reads after CAS failure), so no waiter
// is ever left stranded.
func (f *Future) complete(next *box) bool {
	for {
		cur := f.slot.Load()
		if isTerminal(cur.st) {
			return false
		}
		if !f.slot.CompareAndSwap(cur, next) {
			continue
		}
		notify(cur, next)
		return true
	}
}

func isTerminal(st state) bool {
	return st == stateValue || st == stateError || st == stateCancelled
}

func notify(old, done *box) {
	for n := old.waiters; n != nil; n = n.next {
		close(n.ch)
	}
	for l := old.listener; l != nil; l = l.next {
		invoke(l.cb, done)
	}
}

func invoke(cb func(any, error), done *box) {
	switch done.st {
	case stateValue:
		cb(done.result, nil)
	default:
		cb(nil, done.err)
	}
}

// Get blocks until the future reaches a terminal state, returning the
// result or the terminal error. ignoreInterrupts has no stdlib-level
// interrupt signal in Go the way Java's Thread.interrupt() does; it is
// honored through GetCtx's context cancellation instead — see GetCtx.
func (f *Future) Get() (any, error) {
	ch := f.register()
	if ch == nil {
		return f.terminalResult()
	}
	<-ch
	return f.terminalResult()
}

// GetTimeout blocks until the future is terminal or timeout elapses,
// whichever comes first. On expiry it returns entryerr.ErrTimeout; other
// waiters registered on the same future are unaffected.
func (f *Future) GetTimeout(timeout time.Duration) (any, error) {
	ch := f.register()
	if ch == nil {
		return f.terminalResult()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return f.terminalResult()
	case <-timer.C:
		return nil, entryerr.ErrTimeout
	}
}

// GetCtx blocks until terminal, ctx is done, or — when ignoreInterrupts
// is true — defers ctx cancellation until the future actually completes,
// re-raising it afterward rather than aborting the wait early. This
// preserves the spec's "defer, don't collapse" interrupt semantics
// (spec.md §9(b)).
func (f *Future) GetCtx(ctx context.Context, ignoreInterrupts bool) (any, error) {
	ch := f.register()
	if ch == nil {
		return f.terminalResult()
	}
	if ignoreInterrupts {
		<-ch
		result, err := f.terminalResult()
		if ctx.Err() != nil {
			return result, entryerr.ErrInterrupted
		}
		return result, err
	}
	select {
	case <-ch:
		return f.terminalResult()
	case <-ctx.Done():
		f.unregister(ch)
		return nil, entryerr.ErrInterrupted
	}
}

// register adds a waiter to the box's stack, retrying the CAS until it
// succeeds or the future is already terminal (in which case nil is
// returned and the caller should read the terminal result directly).
func (f *Future) register() chan struct{} {
	ch := make(chan struct{})
	for {
		cur := f.slot.Load()
		if isTerminal(cur.st) {
			return nil
		}
		next := &box{
			st:       stateWaiting,
			waiters:  &waitNode{ch: ch, next: cur.waiters},
			listener: cur.listener,
		}
		if f.slot.CompareAndSwap(cur, next) {
			return ch
		}
	}
}

// unregister unlinks ch from the waiter stack on timeout. A concurrent
// completion may race and simply unpark all nodes before unregister runs
// — the stale, already-closed channel is harmless to drop.
func (f *Future) unregister(ch chan struct{}) {
	for {
		cur := f.slot.Load()
		if isTerminal(cur.st) {
			return
		}
		filtered := filterWaiters(cur.waiters, ch)
		next := &box{st: cur.st, waiters: filtered, listener: cur.listener}
		if f.slot.CompareAndSwap(cur, next) {
			return
		}
	}
}

func filterWaiters(head *waitNode, drop chan struct{}) *waitNode {
	var kept []*waitNode
	for n := head; n != nil; n = n.next {
		if n.ch != drop {
			kept = append(kept, n)
		}
	}
	var newHead *waitNode
	for i := len(kept) - 1; i >= 0; i-- {
		newHead = &waitNode{ch: kept[i].ch, next: newHead}
	}
	return newHead
}

func (f *Future) terminalResult() (any, error) {
	cur := f.slot.Load()
	switch cur.st {
	case stateValue:
		return cur.result, nil
	case stateCancelled:
		return nil, entryerr.ErrCancelled
	case stateError:
		return nil, cur.err
	default:
		return nil, nil
	}
}

// Listen registers cb to be invoked with the terminal (result, error)
// pair. If the future is already terminal, cb runs synchronously on the
// calling goroutine before Listen returns. Otherwise it is invoked on
// whatever goroutine calls OnDone/OnError/OnCancelled. Listeners run in
// LIFO order among themselves, and only after every parked waiter has
// been released; waiters and listeners are not interleaved by
// registration order.
func (f *Future) Listen(cb func(result any, err error)) {
	for {
		cur := f.slot.Load()
		if isTerminal(cur.st) {
			invoke(cb, cur)
			return
		}
		next := &box{
			st:      stateWaiting,
			waiters: cur.waiters,
			listener: &listenerNode{cb: cb, next: cur.listener},
		}
		if f.slot.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Chain returns a new Future resolved by applying mapFn to this future's
// terminal (result, error) pair. If exec is non-nil, mapFn runs on it
// instead of the completer's goroutine.
func (f *Future) Chain(mapFn func(result any, err error) (any, error), exec func(func())) *Future {
	out := New()
	run := func(result any, err error) {
		mapped, mapErr := mapFn(result, err)
		if mapErr != nil {
			out.OnError(mapErr)
			return
		}
		out.OnDone(mapped)
	}
	f.Listen(func(result any, err error) {
		if exec != nil {
			exec(func() { run(result, err) })
			return
		}
		run(result, err)
	})
	return out
}

// IsDone reports whether the future has reached a terminal state.
func (f *Future) IsDone() bool {
	return isTerminal(f.slot.Load().st)
}
