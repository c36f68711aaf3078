// Package cq implements the Continuous-Query Registry collaborator
// (spec.md §6): in-process fan-out of onEntryUpdated/onEntryExpired
// notifications to registered, optionally filtered listeners, each
// delivered over its own buffered channel so one slow subscriber never
// blocks another or the entry lock that produced the notification.
package cq

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vitaliisemenov/gridcache/internal/entry"
)

// Notification is what a registered listener receives.
type Notification struct {
	Key    string
	NewVal any
	OldVal any
	// Expired is true for an onEntryExpired delivery, in which case
	// OldVal carries the value that expired and NewVal is always nil.
	Expired bool
}

// Filter decides whether a listener wants a given update. A nil Filter
// matches everything.
type Filter func(key string, newVal, oldVal any) bool

// Listener is one registered continuous query.
type Listener struct {
	ID   string
	ch   chan Notification
	done chan struct{}

	filter Filter
	// IncludeInternal, if false (the default), skips notifications for
	// internal updates (preload/rebalance traffic), matching Ignite's
	// updateListeners(internal, primary) gate.
	includeInternal bool
	// PrimaryOnly, if true, only fires for entries this node owns as
	// primary, avoiding duplicate delivery from backup copies.
	primaryOnly bool

	dropped atomic.Int64
}

// Events returns the channel notifications for this listener arrive on.
// The channel is closed when the listener is unregistered.
func (l *Listener) Events() <-chan Notification { return l.ch }

// Dropped reports how many notifications this listener missed because
// its channel was full (a slow or absent consumer never blocks the
// entry that produced the notification).
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

// Options configures a registered Listener.
type Options struct {
	Filter          Filter
	IncludeInternal bool
	PrimaryOnly     bool
	BufferSize      int
}

// snapshot is the ListenerSet handle handed back to the entry core: the
// slice of listeners matching this update's (internal, primary) gate,
// captured once under the caller's lock per spec.md §4.E step 5's
// "continuous-query listener set, captured under lock" requirement.
type snapshot []*Listener

// Registry implements entry.CQRegistry.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]*Listener
	seq       atomic.Uint64
	logger    *slog.Logger
}

// New constructs an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{listeners: make(map[string]*Listener), logger: logger}
}

// Register adds a listener and returns it so the caller can read its
// Events() channel and later Unregister it.
func (r *Registry) Register(opts Options) *Listener {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 128
	}
	l := &Listener{
		ID:              fmt.Sprintf("cq-%d", r.seq.Add(1)),
		ch:              make(chan Notification, opts.BufferSize),
		done:            make(chan struct{}),
		filter:          opts.Filter,
		includeInternal: opts.IncludeInternal,
		primaryOnly:     opts.PrimaryOnly,
	}

	r.mu.Lock()
	r.listeners[l.ID] = l
	r.mu.Unlock()

	return l
}

// Unregister removes a listener and closes its channel. Safe to call
// more than once.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	l, ok := r.listeners[id]
	if ok {
		delete(r.listeners, id)
	}
	r.mu.Unlock()

	if ok {
		close(l.ch)
	}
}

// Count returns the number of currently registered listeners.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// UpdateListeners satisfies entry.CQRegistry: snapshots every listener
// whose (internal, primary) gate matches this update, captured while
// the caller still holds the entry lock. Returns ok=false when no
// listener applies, letting the entry core skip the notification
// entirely.
func (r *Registry) UpdateListeners(internal, primary bool) (entry.ListenerSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.listeners) == 0 {
		return nil, false
	}

	matched := make(snapshot, 0, len(r.listeners))
	for _, l := range r.listeners {
		if internal && !l.includeInternal {
			continue
		}
		if l.primaryOnly && !primary {
			continue
		}
		matched = append(matched, l)
	}
	if len(matched) == 0 {
		return nil, false
	}
	return matched, true
}

// OnEntryUpdated satisfies entry.CQRegistry: delivers (key, newVal,
// oldVal) to every listener in set whose filter (if any) matches,
// non-blocking so a full listener channel never stalls the caller.
func (r *Registry) OnEntryUpdated(set entry.ListenerSet, key string, newVal, oldVal any) {
	matched, ok := set.(snapshot)
	if !ok {
		return
	}
	n := Notification{Key: key, NewVal: newVal, OldVal: oldVal}
	for _, l := range matched {
		if l.filter != nil && !l.filter(key, newVal, oldVal) {
			continue
		}
		r.deliver(l, n)
	}
}

// OnEntryExpired satisfies entry.CQRegistry: broadcasts an expiration to
// every currently registered listener whose filter accepts it. Unlike
// OnEntryUpdated, there is no pre-captured snapshot — expiration is
// driven by the TTL scanner, not a caller holding the entry lock, so the
// registry consults its live listener set directly.
func (r *Registry) OnEntryExpired(key string, val any) {
	r.mu.RLock()
	listeners := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.RUnlock()

	n := Notification{Key: key, OldVal: val, Expired: true}
	for _, l := range listeners {
		if l.filter != nil && !l.filter(key, nil, val) {
			continue
		}
		r.deliver(l, n)
	}
}

func (r *Registry) deliver(l *Listener, n Notification) {
	select {
	case l.ch <- n:
	default:
		l.dropped.Add(1)
		r.logger.Warn("continuous query listener dropped notification", "listener", l.ID, "key", n.Key)
	}
}
