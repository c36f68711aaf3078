package version

// Comparator implements the total order over Version values described in
// spec.md §4.A: (topologyVersion, globalTime, order, nodeOrder), with an
// ignoreTime mode that skips the physical-time field so that logically
// equivalent events originating on different nodes compare equal.
type Comparator struct{}

// NewComparator returns the default comparator.
func NewComparator() Comparator {
	return Comparator{}
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater
// than b. When ignoreTime is true the GlobalTime field is skipped.
func (Comparator) Compare(a, b Version, ignoreTime bool) int {
	if a.TopologyVersion != b.TopologyVersion {
		return cmp(a.TopologyVersion, b.TopologyVersion)
	}
	if !ignoreTime && a.GlobalTime != b.GlobalTime {
		return cmp(a.GlobalTime, b.GlobalTime)
	}
	if a.Order != b.Order {
		return cmp(a.Order, b.Order)
	}
	return cmpU(a.NodeOrder, b.NodeOrder)
}

// Greater reports whether a strictly outranks b under the comparator.
func (c Comparator) Greater(a, b Version, ignoreTime bool) bool {
	return c.Compare(a, b, ignoreTime) > 0
}

// GreaterOrEqual reports whether a outranks or equals b.
func (c Comparator) GreaterOrEqual(a, b Version, ignoreTime bool) bool {
	return c.Compare(a, b, ignoreTime) >= 0
}

// Equal reports whether a and b compare equal under the comparator.
func (c Comparator) Equal(a, b Version, ignoreTime bool) bool {
	return c.Compare(a, b, ignoreTime) == 0
}

func cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpU(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
