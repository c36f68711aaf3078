// Package mvcc implements the per-entry MVCC lock-candidate list
// (spec.md §4.D): an ordered set of local and remote lock owners that the
// cache entry consults to decide whether a removal can obsolete
// immediately or must defer.
package mvcc

import (
	"fmt"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

// Candidate is a single pending or granted lock holder on an entry.
type Candidate struct {
	Version version.Version
	NodeID  uint64
	ThreadID uint64
	Local    bool
	Owner    bool // granted (vs. still pending)
}

// Candidates is a small-vector ordered list of Candidate, intrusive in
// the sense that the entry owns it directly — most entries carry zero or
// one candidate, so this is backed by a plain slice rather than a linked
// structure.
type Candidates struct {
	list []Candidate

	key       string
	registrar RemoteCandidateRegistrar
}

// NewCandidates returns an empty candidate set.
func NewCandidates() *Candidates {
	return &Candidates{}
}

// SetRemote attaches the key this set belongs to and the registrar that
// backs non-local Add/Remove with a real cross-node primitive. A nil
// registrar leaves remote candidates purely local-bookkeeping, the same
// as before this was wired.
func (c *Candidates) SetRemote(key string, registrar RemoteCandidateRegistrar) {
	c.key = key
	c.registrar = registrar
}

// Empty reports whether there are no candidates at all.
func (c *Candidates) Empty() bool {
	return c == nil || len(c.list) == 0
}

// Add appends a candidate to the end of the ordered list (FIFO lock
// queue order). For a non-local candidate with a registrar attached
// (see SetRemote), Add first calls RegisterRemote and only appends once
// that succeeds; a denied or failed registration is not added locally
// either, so the two bookkeeping views never diverge.
func (c *Candidates) Add(cand Candidate) error {
	if !cand.Local && c.registrar != nil {
		acquired, err := c.registrar.RegisterRemote(c.key, cand.Version, cand.NodeID, cand.ThreadID)
		if err != nil {
			return fmt.Errorf("mvcc: register remote candidate: %w", err)
		}
		if !acquired {
			return fmt.Errorf("mvcc: remote candidate %+v already held", cand.Version)
		}
	}
	c.list = append(c.list, cand)
	return nil
}

// Remove drops the candidate matching version v, reporting whether one
// was found. If the removed candidate was remote and a registrar is
// attached, its remote registration is released too.
func (c *Candidates) Remove(v version.Version) bool {
	if c.Empty() {
		return false
	}
	for i, cand := range c.list {
		if cand.Version == v {
			c.list = append(c.list[:i], c.list[i+1:]...)
			if !cand.Local && c.registrar != nil {
				// Best-effort: an unreleased key still expires via its TTL.
				_ = c.registrar.ReleaseRemote(c.key, v)
			}
			return true
		}
	}
	return false
}

// ByVersion reports whether a candidate with version v is present.
func (c *Candidates) ByVersion(v version.Version) (Candidate, bool) {
	if c.Empty() {
		return Candidate{}, false
	}
	for _, cand := range c.list {
		if cand.Version == v {
			return cand, true
		}
	}
	return Candidate{}, false
}

// ByLocalThread reports whether a local candidate owned by threadID is
// present.
func (c *Candidates) ByLocalThread(threadID uint64) (Candidate, bool) {
	if c.Empty() {
		return Candidate{}, false
	}
	for _, cand := range c.list {
		if cand.Local && cand.ThreadID == threadID {
			return cand, true
		}
	}
	return Candidate{}, false
}

// ByNodeThread reports whether a candidate matching (nodeID, threadID) is
// present, local or remote.
func (c *Candidates) ByNodeThread(nodeID, threadID uint64) (Candidate, bool) {
	if c.Empty() {
		return Candidate{}, false
	}
	for _, cand := range c.list {
		if cand.NodeID == nodeID && cand.ThreadID == threadID {
			return cand, true
		}
	}
	return Candidate{}, false
}

// AnyOwner reports whether any candidate currently holds the lock
// (Owner == true), used for LOCKED/UNLOCKED event emission.
func (c *Candidates) AnyOwner() bool {
	if c.Empty() {
		return false
	}
	for _, cand := range c.list {
		if cand.Owner {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the set has no candidates other than the ones
// listed in exclude (by Version) — the entry uses this to decide whether
// a removal may immediately mark obsolete (safe iff no active owners
// other than the removing transaction itself).
func (c *Candidates) IsEmpty(exclude ...version.Version) bool {
	if c.Empty() {
		return true
	}
	for _, cand := range c.list {
		excluded := false
		for _, ex := range exclude {
			if cand.Version == ex {
				excluded = true
				break
			}
		}
		if !excluded {
			return false
		}
	}
	return true
}

// PromoteNext returns the next pending candidate in FIFO order that is
// not yet an owner, and whether one exists. The caller (transaction
// layer) is responsible for actually granting the lock and flipping
// Owner.
func (c *Candidates) PromoteNext() (Candidate, bool) {
	if c.Empty() {
		return Candidate{}, false
	}
	for _, cand := range c.list {
		if !cand.Owner {
			return cand, true
		}
	}
	return Candidate{}, false
}

// Len returns the number of candidates currently tracked.
func (c *Candidates) Len() int {
	if c.Empty() {
		return 0
	}
	return len(c.list)
}

// RemoteCandidateRegistrar is the collaborator a remote (cross-node) lock
// manager implements so Candidates.Add for a non-local owner can be
// backed by a real distributed primitive instead of only local
// bookkeeping. internal/lockadapter implements this over Redis.
type RemoteCandidateRegistrar interface {
	// RegisterRemote attempts to record nodeID/threadID as a remote
	// owner of key under v, returning whether it acquired ownership.
	RegisterRemote(key string, v version.Version, nodeID, threadID uint64) (bool, error)
	// ReleaseRemote releases a previously registered remote candidate.
	ReleaseRemote(key string, v version.Version) error
}
