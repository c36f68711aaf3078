// Package version implements the cache entry's logical clock: a total
// order over (topologyVersion, order, nodeOrder, dataCenterID) tuples,
// with an optional embedded conflict version carried for cross-datacenter
// (DR) comparisons only (spec.md §4.A).
package version

import (
	"fmt"

	"github.com/google/uuid"
)

// Version identifies a single write to an entry. order is the per-node
// monotonic counter; nodeOrder identifies the originating node.
// Comparator orders versions by topology version, then GlobalTime
// (unless ignoreTime), then order, with nodeOrder breaking the last tie.
type Version struct {
	TopologyVersion int64
	GlobalTime      int64
	Order           int64
	NodeOrder       uint64
	DataCenterID    uint8

	// Conflict is an optional embedded version used only by the DR
	// conflict resolver (internal/closure), never by ordinary ordering.
	Conflict *Version
}

// IsZero reports whether v is the unset Version{}.
func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) String() string {
	return fmt.Sprintf("v{top:%d t:%d ord:%d node:%d dc:%d}",
		v.TopologyVersion, v.GlobalTime, v.Order, v.NodeOrder, v.DataCenterID)
}

// WithConflict returns a copy of v carrying the given conflict version.
func (v Version) WithConflict(c Version) Version {
	cc := c
	v.Conflict = &cc
	return v
}

// NodeID derives a stable per-process node order value from a random
// UUID, the same approach the rest of this codebase uses for opaque
// identifiers (google/uuid) rather than relying on hostname/pid, which
// collide across containers.
func NodeID() uint64 {
	id := uuid.New()
	var n uint64
	for i := 0; i < 8; i++ {
		n = n<<8 | uint64(id[i])
	}
	return n
}
