package interceptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/gridcache/internal/entry"
)

type recordingStage struct {
	name        string
	vetoPut     bool
	vetoRemove  bool
	beforeErr   error
	afterErr    error
	putCalls    *[]string
	removeCalls *[]string
}

func (s *recordingStage) OnBeforePut(view entry.View, newVal any) (any, bool, error) {
	if s.putCalls != nil {
		*s.putCalls = append(*s.putCalls, s.name)
	}
	if s.beforeErr != nil {
		return nil, false, s.beforeErr
	}
	if s.vetoPut {
		return nil, false, nil
	}
	return newVal, true, nil
}

func (s *recordingStage) OnBeforeRemove(view entry.View) (bool, any, error) {
	if s.removeCalls != nil {
		*s.removeCalls = append(*s.removeCalls, s.name)
	}
	if s.beforeErr != nil {
		return false, nil, s.beforeErr
	}
	return s.vetoRemove, view.OldValue, nil
}

func (s *recordingStage) OnAfterPut(view entry.View, newVal any) error {
	if s.putCalls != nil {
		*s.putCalls = append(*s.putCalls, s.name)
	}
	return s.afterErr
}

func (s *recordingStage) OnAfterRemove(view entry.View) error {
	if s.removeCalls != nil {
		*s.removeCalls = append(*s.removeCalls, s.name)
	}
	return s.afterErr
}

func TestChain_OnBeforePut_RunsInOrderAndThreadsValue(t *testing.T) {
	var calls []string
	adopt := &recordingStage{name: "adopt", putCalls: &calls}
	observe := &recordingStage{name: "observe", putCalls: &calls}
	c := NewChain(nil, adopt, observe)

	val, ok, err := c.OnBeforePut(entry.View{Key: "k"}, "v1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", val)
	assert.Equal(t, []string{"adopt", "observe"}, calls)
}

func TestChain_OnBeforePut_FirstVetoStopsChain(t *testing.T) {
	var calls []string
	veto := &recordingStage{name: "veto", vetoPut: true, putCalls: &calls}
	never := &recordingStage{name: "never", putCalls: &calls}
	c := NewChain(nil, veto, never)

	_, ok, err := c.OnBeforePut(entry.View{Key: "k"}, "v1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"veto"}, calls)
}

func TestChain_OnBeforePut_PropagatesWrappedError(t *testing.T) {
	failErr := errors.New("boom")
	failing := &recordingStage{name: "failing", beforeErr: failErr}
	c := NewChain(nil, failing)

	_, _, err := c.OnBeforePut(entry.View{Key: "k"}, "v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, failErr)
}

func TestChain_OnBeforeRemove_FirstCancelStops(t *testing.T) {
	var calls []string
	cancel := &recordingStage{name: "cancel", vetoRemove: true, removeCalls: &calls}
	never := &recordingStage{name: "never", removeCalls: &calls}
	c := NewChain(nil, cancel, never)

	canceled, _, err := c.OnBeforeRemove(entry.View{Key: "k"})
	require.NoError(t, err)
	assert.True(t, canceled)
	assert.Equal(t, []string{"cancel"}, calls)
}

func TestChain_OnAfterPut_RunsAllStagesInReverseOrder(t *testing.T) {
	var calls []string
	first := &recordingStage{name: "first", putCalls: &calls}
	second := &recordingStage{name: "second", putCalls: &calls}
	c := NewChain(nil, first, second)

	err := c.OnAfterPut(entry.View{Key: "k"}, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, calls)
}

func TestChain_OnAfterPut_JoinsErrorsFromAllStages(t *testing.T) {
	err1 := errors.New("err1")
	err2 := errors.New("err2")
	a := &recordingStage{name: "a", afterErr: err1}
	b := &recordingStage{name: "b", afterErr: err2}
	c := NewChain(nil, a, b)

	err := c.OnAfterPut(entry.View{Key: "k"}, "v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, err1)
	assert.ErrorIs(t, err, err2)
}

func TestValidator_OnBeforePut_RejectsInvalidValue(t *testing.T) {
	v := NewValidator(func(val any) error {
		if val == nil {
			return errors.New("nil not allowed")
		}
		return nil
	})

	_, ok, err := v.OnBeforePut(entry.View{Key: "k"}, nil)
	require.Error(t, err)
	assert.False(t, ok)

	_, ok, err = v.OnBeforePut(entry.View{Key: "k"}, "fine")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoggingInterceptor_NeverVetoes(t *testing.T) {
	l := NewLoggingInterceptor(nil)
	val, ok, err := l.OnBeforePut(entry.View{Key: "k"}, "v")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	cancel, _, err := l.OnBeforeRemove(entry.View{Key: "k"})
	require.NoError(t, err)
	assert.False(t, cancel)
}
