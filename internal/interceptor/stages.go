package interceptor

import (
	"fmt"
	"log/slog"

	"github.com/vitaliisemenov/gridcache/internal/entry"
)

// LoggingInterceptor logs every put/remove decision at debug level.
// Never vetoes and never errors — a pure observer stage, grounded on the
// teacher's TracingMiddleware slot in a formatter chain.
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor builds a LoggingInterceptor.
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger}
}

func (l *LoggingInterceptor) OnBeforePut(view entry.View, newVal any) (any, bool, error) {
	l.logger.Debug("before put", "key", view.Key, "present", view.Present)
	return newVal, true, nil
}

func (l *LoggingInterceptor) OnBeforeRemove(view entry.View) (bool, any, error) {
	l.logger.Debug("before remove", "key", view.Key, "present", view.Present)
	return false, view.OldValue, nil
}

func (l *LoggingInterceptor) OnAfterPut(view entry.View, newVal any) error {
	l.logger.Debug("after put", "key", view.Key)
	return nil
}

func (l *LoggingInterceptor) OnAfterRemove(view entry.View) error {
	l.logger.Debug("after remove", "key", view.Key)
	return nil
}

// Validator vetoes a put whose new value fails validate.
type Validator struct {
	validate func(val any) error
}

// NewValidator builds a Validator around a user-supplied check,
// mirroring the teacher's ValidationMiddleware gate.
func NewValidator(validate func(val any) error) *Validator {
	return &Validator{validate: validate}
}

func (v *Validator) OnBeforePut(view entry.View, newVal any) (any, bool, error) {
	if v.validate == nil {
		return newVal, true, nil
	}
	if err := v.validate(newVal); err != nil {
		return nil, false, fmt.Errorf("value rejected for key %q: %w", view.Key, err)
	}
	return newVal, true, nil
}

func (v *Validator) OnBeforeRemove(view entry.View) (bool, any, error) {
	return false, view.OldValue, nil
}

func (v *Validator) OnAfterPut(entry.View, any) error { return nil }
func (v *Validator) OnAfterRemove(entry.View) error   { return nil }
