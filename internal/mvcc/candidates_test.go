package mvcc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

// fakeRegistrar is an in-memory stand-in for lockadapter.Registrar.
type fakeRegistrar struct {
	held       map[string]bool
	denyNext   bool
	errNext    error
	registered []string
	released   []string
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{held: make(map[string]bool)}
}

func (f *fakeRegistrar) RegisterRemote(key string, v version.Version, nodeID, threadID uint64) (bool, error) {
	if f.errNext != nil {
		return false, f.errNext
	}
	if f.denyNext {
		return false, nil
	}
	f.registered = append(f.registered, key)
	f.held[key] = true
	return true, nil
}

func (f *fakeRegistrar) ReleaseRemote(key string, v version.Version) error {
	f.released = append(f.released, key)
	delete(f.held, key)
	return nil
}

func TestCandidates_EmptyByDefault(t *testing.T) {
	c := NewCandidates()
	assert.True(t, c.Empty())
	assert.True(t, c.IsEmpty())
	assert.False(t, c.AnyOwner())
}

func TestCandidates_AddRemove(t *testing.T) {
	c := NewCandidates()
	v1 := version.Version{Order: 1}
	v2 := version.Version{Order: 2}

	c.Add(Candidate{Version: v1, Local: true, ThreadID: 10})
	c.Add(Candidate{Version: v2, NodeID: 7, ThreadID: 20})

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.IsEmpty())

	_, ok := c.ByVersion(v1)
	assert.True(t, ok)

	assert.True(t, c.Remove(v1))
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Remove(v1), "already removed")
}

func TestCandidates_ByLocalThread(t *testing.T) {
	c := NewCandidates()
	c.Add(Candidate{Version: version.Version{Order: 1}, Local: true, ThreadID: 5})

	cand, ok := c.ByLocalThread(5)
	assert.True(t, ok)
	assert.True(t, cand.Local)

	_, ok = c.ByLocalThread(99)
	assert.False(t, ok)
}

func TestCandidates_IsEmptyExcludingSelf(t *testing.T) {
	c := NewCandidates()
	self := version.Version{Order: 1}
	c.Add(Candidate{Version: self})

	assert.False(t, c.IsEmpty())
	assert.True(t, c.IsEmpty(self), "removing txn's own candidate should not block obsolete")
}

func TestCandidates_AnyOwner(t *testing.T) {
	c := NewCandidates()
	c.Add(Candidate{Version: version.Version{Order: 1}, Owner: false})
	assert.False(t, c.AnyOwner())

	c.Add(Candidate{Version: version.Version{Order: 2}, Owner: true})
	assert.True(t, c.AnyOwner())
}

func TestCandidates_PromoteNext(t *testing.T) {
	c := NewCandidates()
	c.Add(Candidate{Version: version.Version{Order: 1}, Owner: true})
	c.Add(Candidate{Version: version.Version{Order: 2}, Owner: false})

	next, ok := c.PromoteNext()
	assert.True(t, ok)
	assert.Equal(t, int64(2), next.Version.Order)
}

func TestCandidates_RemoteAddRegistersAndReleaseReleases(t *testing.T) {
	reg := newFakeRegistrar()
	c := NewCandidates()
	c.SetRemote("k1", reg)

	v := version.Version{Order: 1, NodeOrder: 2}
	require.NoError(t, c.Add(Candidate{Version: v, NodeID: 2, ThreadID: 9}))
	assert.Equal(t, []string{"k1"}, reg.registered)
	assert.Equal(t, 1, c.Len())

	assert.True(t, c.Remove(v))
	assert.Equal(t, []string{"k1"}, reg.released)
}

func TestCandidates_RemoteAddDeniedIsNotRecordedLocally(t *testing.T) {
	reg := newFakeRegistrar()
	reg.denyNext = true
	c := NewCandidates()
	c.SetRemote("k1", reg)

	err := c.Add(Candidate{Version: version.Version{Order: 1}, NodeID: 2, ThreadID: 9})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCandidates_RemoteAddErrorPropagates(t *testing.T) {
	reg := newFakeRegistrar()
	reg.errNext = errors.New("redis unavailable")
	c := NewCandidates()
	c.SetRemote("k1", reg)

	err := c.Add(Candidate{Version: version.Version{Order: 1}, NodeID: 2, ThreadID: 9})
	require.ErrorIs(t, err, reg.errNext)
	assert.Equal(t, 0, c.Len())
}

func TestCandidates_LocalAddNeverConsultsRegistrar(t *testing.T) {
	reg := newFakeRegistrar()
	reg.denyNext = true
	c := NewCandidates()
	c.SetRemote("k1", reg)

	err := c.Add(Candidate{Version: version.Version{Order: 1}, Local: true, ThreadID: 9})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Empty(t, reg.registered)
}
