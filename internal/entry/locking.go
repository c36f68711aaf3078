package entry

import (
	"github.com/vitaliisemenov/gridcache/internal/mvcc"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// AddLockCandidate records cand as a pending or granted lock holder on
// the entry (spec.md §4.D). The transaction manager calls this before
// InnerSet/InnerRemove so a subsequent removal can consult IsEmpty to
// decide between immediate obsolete and deferred delete. For a non-local
// candidate, this registers ownership with the configured
// RemoteCandidateRegistrar (internal/lockadapter in production) and
// returns an error without recording anything locally if that
// registration is denied or fails.
func (e *Entry) AddLockCandidate(cand mvcc.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.candidatesLocked().Add(cand); err != nil {
		return err
	}
	if cand.Owner && e.collab.Events != nil && e.collab.Events.IsRecordable(EventLocked) {
		e.collab.Events.AddEvent(e.partitionID, e.key, e.collab.NodeOrder, e.ver, EventLocked, e.val)
	}
	return nil
}

// ReleaseLockCandidate removes the candidate matching v, reporting
// whether one was found. Fires UNLOCKED once no candidate remains an
// owner.
func (e *Entry) ReleaseLockCandidate(v version.Version) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cands := e.extras.Candidates()
	if cands == nil {
		return false
	}
	removed := cands.Remove(v)
	if removed && !cands.AnyOwner() && e.collab.Events != nil && e.collab.Events.IsRecordable(EventUnlocked) {
		e.collab.Events.AddEvent(e.partitionID, e.key, e.collab.NodeOrder, e.ver, EventUnlocked, e.val)
	}
	return removed
}

// HasLockCandidate reports whether v is currently a recorded candidate.
func (e *Entry) HasLockCandidate(v version.Version) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.extras.Candidates().ByVersion(v)
	return ok
}
