// Package extras implements the entry's optional metadata bag
// (spec.md §4.B): TTL + expire-time, the MVCC candidate set, and the
// obsolete version, none of which most live entries carry. Extras is a
// tagged union rather than a struct of pointers so the zero-extras case
// costs one pointer of overhead on the owning entry and setters never
// allocate for fields that stay at their default.
package extras

import (
	"time"

	"github.com/vitaliisemenov/gridcache/internal/mvcc"
	"github.com/vitaliisemenov/gridcache/internal/version"
)

// kind tags which optional fields are actually populated.
type kind uint8

const (
	kindNone kind = iota
	kindTTL
	kindMvcc
	kindObsolete
	kindTTLMvcc
	kindTTLObsolete
	kindMvccObsolete
	kindAll
)

// Extras is the optional metadata bag. A nil *Extras means "no extras at
// all" (TTL=0, no candidates, not obsolete) — the common case.
type Extras struct {
	k        kind
	ttl      time.Duration
	expireAt time.Time
	cands    *mvcc.Candidates
	obsolete *version.Version
}

func (e *Extras) hasTTL() bool      { return e != nil && (e.k == kindTTL || e.k == kindTTLMvcc || e.k == kindTTLObsolete || e.k == kindAll) }
func (e *Extras) hasMvcc() bool     { return e != nil && (e.k == kindMvcc || e.k == kindTTLMvcc || e.k == kindMvccObsolete || e.k == kindAll) }
func (e *Extras) hasObsolete() bool { return e != nil && (e.k == kindObsolete || e.k == kindTTLObsolete || e.k == kindMvccObsolete || e.k == kindAll) }

// TTL returns the entry's TTL, or 0 ("eternal") if unset.
func (e *Extras) TTL() time.Duration {
	if !e.hasTTL() {
		return 0
	}
	return e.ttl
}

// ExpireAt returns the absolute expiration time, or the zero time if
// eternal.
func (e *Extras) ExpireAt() time.Time {
	if !e.hasTTL() {
		return time.Time{}
	}
	return e.expireAt
}

// Candidates returns the MVCC candidate set, or nil if none were ever
// registered.
func (e *Extras) Candidates() *mvcc.Candidates {
	if !e.hasMvcc() {
		return nil
	}
	return e.cands
}

// ObsoleteVersion returns the version the entry was marked obsolete
// under, and whether it is set.
func (e *Extras) ObsoleteVersion() (version.Version, bool) {
	if !e.hasObsolete() {
		return version.Version{}, false
	}
	return *e.obsolete, true
}

// IsObsolete reports whether the extras carry an obsolete version —
// equivalent to ObsoleteVersion's second return, offered for readability
// at entry-core call sites.
func (e *Extras) IsObsolete() bool {
	return e.hasObsolete()
}

// clone copies e's populated fields into a new Extras with kind target.
func (e *Extras) clone(target kind) *Extras {
	n := &Extras{k: target}
	if e != nil {
		n.ttl = e.ttl
		n.expireAt = e.expireAt
		n.cands = e.cands
		n.obsolete = e.obsolete
	}
	return n
}

// WithTTL returns a copy of e (possibly nil) with TTL/expire-time set. A
// zero ttl clears TTL back to eternal — callers reassign the result.
func (e *Extras) WithTTL(ttl time.Duration, expireAt time.Time) *Extras {
	if ttl == 0 {
		return e.withoutTTL()
	}
	target := kindTTL
	switch {
	case e.hasMvcc() && e.hasObsolete():
		target = kindAll
	case e.hasMvcc():
		target = kindTTLMvcc
	case e.hasObsolete():
		target = kindTTLObsolete
	}
	n := e.clone(target)
	n.ttl = ttl
	n.expireAt = expireAt
	return n
}

func (e *Extras) withoutTTL() *Extras {
	switch {
	case e.hasMvcc() && e.hasObsolete():
		return e.clone(kindMvccObsolete)
	case e.hasMvcc():
		return e.clone(kindMvcc)
	case e.hasObsolete():
		return e.clone(kindObsolete)
	default:
		return nil
	}
}

// WithCandidates returns a copy of e with the MVCC candidate set
// attached. A nil c clears the field; a freshly created, still-empty
// set is attached as-is so callers that lazily create one before their
// first Add still observe it afterward.
func (e *Extras) WithCandidates(c *mvcc.Candidates) *Extras {
	if c == nil {
		return e.withoutCandidates()
	}
	target := kindMvcc
	switch {
	case e.hasTTL() && e.hasObsolete():
		target = kindAll
	case e.hasTTL():
		target = kindTTLMvcc
	case e.hasObsolete():
		target = kindMvccObsolete
	}
	n := e.clone(target)
	n.cands = c
	return n
}

func (e *Extras) withoutCandidates() *Extras {
	switch {
	case e.hasTTL() && e.hasObsolete():
		return e.clone(kindTTLObsolete)
	case e.hasTTL():
		return e.clone(kindTTL)
	case e.hasObsolete():
		return e.clone(kindObsolete)
	default:
		return nil
	}
}

// WithObsolete returns a copy of e with the obsolete version set. Once
// set, spec.md invariant: the entry is terminal — callers must not clear
// this back.
func (e *Extras) WithObsolete(v version.Version) *Extras {
	target := kindObsolete
	switch {
	case e.hasTTL() && e.hasMvcc():
		target = kindAll
	case e.hasTTL():
		target = kindTTLObsolete
	case e.hasMvcc():
		target = kindMvccObsolete
	}
	n := e.clone(target)
	n.obsolete = &v
	return n
}
