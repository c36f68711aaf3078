package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComparator_Compare(t *testing.T) {
	c := NewComparator()

	v1 := Version{TopologyVersion: 1, GlobalTime: 100, Order: 1, NodeOrder: 1}
	v2 := Version{TopologyVersion: 1, GlobalTime: 200, Order: 2, NodeOrder: 1}
	v3 := Version{TopologyVersion: 2, GlobalTime: 50, Order: 1, NodeOrder: 1}

	assert.Equal(t, -1, c.Compare(v1, v2, false))
	assert.Equal(t, 1, c.Compare(v2, v1, false))
	assert.Equal(t, 0, c.Compare(v1, v1, false))
	assert.True(t, c.Greater(v3, v2, false), "higher topology always wins")
}

func TestComparator_IgnoreTime(t *testing.T) {
	c := NewComparator()

	v1 := Version{TopologyVersion: 1, GlobalTime: 100, Order: 5, NodeOrder: 1}
	v2 := Version{TopologyVersion: 1, GlobalTime: 999, Order: 5, NodeOrder: 1}

	assert.NotEqual(t, 0, c.Compare(v1, v2, false), "differ only in time")
	assert.Equal(t, 0, c.Compare(v1, v2, true), "ignoreTime collapses the time difference")
}

func TestComparator_NodeOrderTiebreak(t *testing.T) {
	c := NewComparator()
	v1 := Version{TopologyVersion: 1, GlobalTime: 1, Order: 1, NodeOrder: 1}
	v2 := Version{TopologyVersion: 1, GlobalTime: 1, Order: 1, NodeOrder: 2}

	assert.True(t, c.Greater(v2, v1, false))
}

func TestLocalGenerator_Monotonic(t *testing.T) {
	clockVal := int64(0)
	gen := NewLocalGenerator(1, 42, 0, func() int64 {
		clockVal++
		return clockVal
	})

	c := NewComparator()
	prev := gen.Next()
	for i := 0; i < 100; i++ {
		next := gen.NextFor(prev)
		assert.True(t, c.Greater(next, prev, false))
		prev = next
	}
}

func TestVersion_WithConflict(t *testing.T) {
	v := Version{Order: 1}
	conflict := Version{Order: 99}
	withConflict := v.WithConflict(conflict)

	assert.Nil(t, v.Conflict)
	assert.NotNil(t, withConflict.Conflict)
	assert.Equal(t, conflict, *withConflict.Conflict)
}

func TestNodeID_Unique(t *testing.T) {
	a := NodeID()
	b := NodeID()
	assert.NotEqual(t, a, b)
}
