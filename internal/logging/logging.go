// Package logging configures the root structured logger. Unlike a
// SetDefault-based global, components here accept a *slog.Logger at
// construction and fall back to a discard logger only when none is given,
// so log output always threads back to whatever Setup built in main.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Config selects the handler format and minimum level for the root logger.
type Config struct {
	Format string // "json" | "text"
	Level  string // "debug" | "info" | "warn" | "error"
}

// Setup builds the process's root logger from cfg. It intentionally does
// not call slog.SetDefault; main threads the returned logger through every
// component constructor instead.
func Setup(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns log, or a discard logger when log is nil.
func Default(log *slog.Logger) *slog.Logger {
	if log != nil {
		return log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component scopes log with a "component" attribute.
func Component(log *slog.Logger, name string) *slog.Logger {
	return Default(log).With("component", name)
}

// TopicLogger scopes log with the topic name and a fresh correlation id,
// used by the Orchestrator when it dispatches a worker for a topic.
func TopicLogger(log *slog.Logger, topic string) *slog.Logger {
	return Default(log).With("topic", topic, "correlation_id", uuid.NewString())
}

type correlationIDKey struct{}

// WithCorrelationID attaches id to ctx for propagation through a batch scope.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the id attached by WithCorrelationID, or "" if none.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}
