package entry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vitaliisemenov/gridcache/internal/closure"
	"github.com/vitaliisemenov/gridcache/internal/entryerr"
	"github.com/vitaliisemenov/gridcache/internal/extras"
	"github.com/vitaliisemenov/gridcache/internal/future"
	"github.com/vitaliisemenov/gridcache/internal/metrics"
	"github.com/vitaliisemenov/gridcache/internal/mvcc"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

type flags uint8

const (
	flagDeleted   flags = 1 << iota // IS_DELETED: deferred-deletion tombstone
	flagUnswapped                   // IS_UNSWAPPED: off-heap row read at least once
)

func (f flags) has(bit flags) bool { return f&bit != 0 }

// Collaborators bundles every constructor-injected dependency the entry
// core consults. Optional collaborators (Interceptor, CQ, WAL,
// ExternalStore, Events, DR) may be left nil; the entry core treats a
// nil optional collaborator as a no-op.
type Collaborators struct {
	RowStore      RowStore
	VersionGen    version.Generator
	ExpiryPolicy  ExpiryPolicy
	Interceptor   Interceptor
	CQ            CQRegistry
	WAL           WAL
	ExternalStore ExternalStore
	Events        EventRecorder
	Partition     Partition
	DR            DRReplicator
	Metrics       *metrics.EntryMetrics
	LockRegistrar mvcc.RemoteCandidateRegistrar

	NodeOrder      uint64
	Primary        bool
	WriteThrough   bool
	ReadThrough    bool
	DeferredDelete bool
	NearCache      bool

	Logger *slog.Logger
}

// Entry is the per-key cache entry state machine (spec.md §3/§4.E). The
// zero value is not usable; construct with New.
type Entry struct {
	mu sync.Mutex

	key         string
	partitionID int

	val     any
	present bool
	ver     version.Version

	startVer version.Version

	extras *extras.Extras
	fl     flags

	comparator version.Comparator

	collab Collaborators
	logger *slog.Logger
}

// New constructs a fresh entry for key in partitionID, with no value and
// a freshly minted start version. collab.Primary/WriteThrough/etc. are
// captured for the lifetime of the entry.
func New(key string, partitionID int, collab Collaborators) *Entry {
	logger := collab.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sv := collab.VersionGen.Next()
	return &Entry{
		key:         key,
		partitionID: partitionID,
		ver:         sv,
		startVer:    sv,
		comparator:  version.NewComparator(),
		collab:      collab,
		logger:      logger,
	}
}

// Key returns the entry's immutable key.
func (e *Entry) Key() string { return e.key }

// isObsoleteLocked reports whether the entry has been marked obsolete.
// Must be called with mu held.
func (e *Entry) isObsoleteLocked() bool {
	_, ok := e.extras.ObsoleteVersion()
	return ok
}

// checkNotObsoleteLocked returns entryerr.ErrEntryRemoved if the entry is
// terminal. Must be called with mu held.
func (e *Entry) checkNotObsoleteLocked() error {
	if e.isObsoleteLocked() {
		return entryerr.ErrEntryRemoved
	}
	return nil
}

// isNewLocked reports whether the entry has never been written: its
// version still equals the start version minted at construction and
// that version originated on this node.
func (e *Entry) isNewLocked() bool {
	return e.ver == e.startVer && e.startVer.NodeOrder == e.collab.NodeOrder
}

// rowLocked snapshots the entry's current state as a closure.Row. Must be
// called with mu held.
func (e *Entry) rowLocked() closure.Row {
	ttl, expireAt := e.ttlExtrasLocked()
	var expireNano int64
	if !expireAt.IsZero() {
		expireNano = expireAt.UnixNano()
	}
	return closure.Row{
		Present:  e.present,
		Value:    e.val,
		Version:  e.ver,
		TTL:      int64(ttl),
		ExpireAt: expireNano,
	}
}

func (e *Entry) ttlExtrasLocked() (time.Duration, time.Time) {
	return e.extras.TTL(), e.extras.ExpireAt()
}

// applyRowLocked installs row as the entry's new state, refreshing
// extras' TTL/expire-time and val/present/ver. Must be called with mu
// held.
func (e *Entry) applyRowLocked(row closure.Row) {
	e.present = row.Present
	e.val = row.Value
	e.ver = row.Version
	if row.TTL > 0 {
		e.extras = e.extras.WithTTL(time.Duration(row.TTL), time.Unix(0, row.ExpireAt))
	} else {
		e.extras = e.extras.WithTTL(0, time.Time{})
	}
}

// candidatesLocked returns the entry's MVCC candidate set, creating one
// if absent. Must be called with mu held.
func (e *Entry) candidatesLocked() *mvcc.Candidates {
	c := e.extras.Candidates()
	if c == nil {
		c = mvcc.NewCandidates()
		c.SetRemote(e.key, e.collab.LockRegistrar)
		e.extras = e.extras.WithCandidates(c)
	}
	return c
}

// markObsoleteLocked transitions the entry to Obsolete under obsoleteVer.
// Terminal: no further calls may mutate val/ver/extras afterward except
// reading the obsolete marker itself. Must be called with mu held.
func (e *Entry) markObsoleteLocked(obsoleteVer version.Version) {
	e.extras = e.extras.WithObsolete(obsoleteVer)
	e.val = nil
	e.present = false
}

// safeToObsoleteLocked reports whether a removal may immediately mark
// the entry obsolete: no active lock candidates other than excludeVer,
// and deferred-deletion is not in effect. Must be called with mu held.
func (e *Entry) safeToObsoleteLocked(excludeVer version.Version) bool {
	if e.collab.DeferredDelete {
		return false
	}
	cands := e.extras.Candidates()
	return cands.IsEmpty(excludeVer)
}

func (e *Entry) newFuture() *future.Future { return future.New() }
