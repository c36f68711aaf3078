// Package interceptor implements the Interceptor collaborator (spec.md
// §6): the onBeforePut/onBeforeRemove/onAfterPut/onAfterRemove callback
// quartet, composed as an ordered chain of independently registered
// interceptors the way the teacher composes formatter middleware.
package interceptor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vitaliisemenov/gridcache/internal/entry"
)

// Chain composes zero or more entry.Interceptor values into one,
// executed in registration order. The first is outermost: its
// onBefore* runs first and can veto before any later interceptor sees
// the operation; its onAfter* runs last, after every other
// interceptor's onAfter* has had a chance to observe the committed
// value.
type Chain struct {
	stages []entry.Interceptor
	logger *slog.Logger
}

// NewChain builds a chain from stages in the given order.
func NewChain(logger *slog.Logger, stages ...entry.Interceptor) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{stages: stages, logger: logger}
}

// OnBeforePut runs each stage's OnBeforePut in order, threading the
// possibly-adopted value from one stage into the next. The first stage
// to veto (ok=false) or error stops the chain immediately.
func (c *Chain) OnBeforePut(view entry.View, newVal any) (any, bool, error) {
	val := newVal
	for _, s := range c.stages {
		adopted, ok, err := s.OnBeforePut(view, val)
		if err != nil {
			return nil, false, fmt.Errorf("interceptor onBeforePut: %w", err)
		}
		if !ok {
			return nil, false, nil
		}
		val = adopted
	}
	return val, true, nil
}

// OnBeforeRemove runs each stage's OnBeforeRemove in order. The first
// stage to cancel or error stops the chain immediately.
func (c *Chain) OnBeforeRemove(view entry.View) (bool, any, error) {
	var lastVal any
	for _, s := range c.stages {
		cancel, val, err := s.OnBeforeRemove(view)
		if err != nil {
			return false, nil, fmt.Errorf("interceptor onBeforeRemove: %w", err)
		}
		if cancel {
			return true, val, nil
		}
		lastVal = val
	}
	return false, lastVal, nil
}

// OnAfterPut runs every stage's OnAfterPut, in reverse registration
// order, continuing past a failing stage and joining every error seen
// (the entry core logs and swallows whatever this returns, per spec.md
// §7's onAfter* veto/log-and-swallow split — but a chain must not let
// one broken stage silence the rest).
func (c *Chain) OnAfterPut(view entry.View, newVal any) error {
	var errs []error
	for i := len(c.stages) - 1; i >= 0; i-- {
		if err := c.stages[i].OnAfterPut(view, newVal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnAfterRemove runs every stage's OnAfterRemove, in reverse
// registration order, joining every error seen.
func (c *Chain) OnAfterRemove(view entry.View) error {
	var errs []error
	for i := len(c.stages) - 1; i >= 0; i-- {
		if err := c.stages[i].OnAfterRemove(view); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
