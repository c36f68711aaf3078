// Package obslog provides the structured logging setup shared by every
// gridcache component: a slog.Logger built from a Config, writing to
// stdout/stderr or a rotating file.
package obslog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is the type for context keys owned by this package.
type ContextKey string

// OpIDKey is the context key carrying the per-operation trace id attached
// by entry.Entry operations (innerGet/innerSet/innerUpdate/...).
const OpIDKey ContextKey = "op_id"

// Config holds logger configuration, mirroring gridconfig.LogConfig.
type Config struct {
	Level      string
	Format     string
	Output     string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// New creates a new structured logger based on configuration.
func New(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)
	writer := SetupWriter(cfg)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

// ParseLevel parses a string log level into slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupWriter configures the output writer based on configuration. A
// "file" output rotates via lumberjack, the same writer the WAL segment
// writer uses for its own rotation.
func SetupWriter(cfg Config) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	case "stderr":
		return os.Stderr
	case "stdout", "":
		return os.Stdout
	default:
		return os.Stdout
	}
}

// GenerateOpID generates a short opaque id used to correlate the log
// lines a single entry operation emits across the unlock boundary (store
// call, WAL write, interceptor, CQ delivery).
func GenerateOpID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("op_%d", time.Now().UnixNano())
	}
	return "op_" + hex.EncodeToString(buf)
}

// WithOpID attaches an operation id to ctx.
func WithOpID(ctx context.Context, opID string) context.Context {
	return context.WithValue(ctx, OpIDKey, opID)
}

// OpID extracts the operation id from ctx, if any.
func OpID(ctx context.Context) string {
	if v, ok := ctx.Value(OpIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger annotated with the context's operation id.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := OpID(ctx); id != "" {
		return logger.With("op_id", id)
	}
	return logger
}
