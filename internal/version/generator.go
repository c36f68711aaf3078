package version

import "sync/atomic"

// Generator is the Version Generator collaborator (spec.md §6): it hands
// out monotonically increasing versions for a single node. Implementations
// must guarantee monotonicity under Comparator within that node.
type Generator interface {
	// Next mints a brand-new version at the current topology/time.
	Next() Version
	// NextFor mints a version that outranks prev (used on update).
	NextFor(prev Version) Version
	// NextForLoad mints a version for a value loaded from a store or
	// preloader, also required to outrank prev.
	NextForLoad(prev Version) Version
}

// LocalGenerator is the default, process-local Generator: an atomic
// counter for Order plus a fixed NodeOrder/DataCenterID/TopologyVersion,
// and a caller-supplied clock for GlobalTime (tests inject a fake clock;
// production uses time.Now().UnixNano).
type LocalGenerator struct {
	topologyVersion int64
	nodeOrder       uint64
	dataCenterID    uint8
	clock           func() int64
	counter         atomic.Int64
}

// NewLocalGenerator constructs a Generator for this node. clock is called
// to stamp GlobalTime; pass time.Now().UnixNano in production.
func NewLocalGenerator(topologyVersion int64, nodeOrder uint64, dataCenterID uint8, clock func() int64) *LocalGenerator {
	return &LocalGenerator{
		topologyVersion: topologyVersion,
		nodeOrder:       nodeOrder,
		dataCenterID:    dataCenterID,
		clock:           clock,
	}
}

// Next implements Generator.
func (g *LocalGenerator) Next() Version {
	return Version{
		TopologyVersion: g.topologyVersion,
		GlobalTime:      g.clock(),
		Order:           g.counter.Add(1),
		NodeOrder:       g.nodeOrder,
		DataCenterID:    g.dataCenterID,
	}
}

// NextFor implements Generator: the returned version is guaranteed to
// strictly exceed prev under the default (time-sensitive) comparator
// because Order is monotonic per-node and GlobalTime is non-decreasing.
func (g *LocalGenerator) NextFor(prev Version) Version {
	return g.Next()
}

// NextForLoad implements Generator identically to NextFor; the off-heap
// load path has no additional requirement beyond strict monotonicity.
func (g *LocalGenerator) NextForLoad(prev Version) Version {
	return g.Next()
}

// SetTopologyVersion updates the topology version stamped onto future
// versions, called when the partition-topology manager (out of scope
// here) observes a new topology.
func (g *LocalGenerator) SetTopologyVersion(tv int64) {
	g.topologyVersion = tv
}
