// Package observability records lightweight spans and metrics around
// portal lookups through the structured logger. It stays slog-based so
// enabling it costs nothing beyond log volume.
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config toggles instrumentation.
type Config struct {
	Enabled bool
}

var (
	mu      sync.RWMutex
	sink    *slog.Logger
	enabled bool
)

// Setup installs the logger instrumentation writes to. Passing a nil
// logger or Enabled=false turns spans and metrics into no-ops.
func Setup(cfg Config, logger *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sink = logger
	enabled = cfg.Enabled && logger != nil
}

func current() (*slog.Logger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return sink, enabled
}

// StartSpan marks the beginning of a named operation. The returned
// finish func logs the outcome with its duration.
func StartSpan(ctx context.Context, component, operation string) func(error) {
	logger, on := current()
	if !on {
		return func(error) {}
	}

	start := time.Now()
	logger.LogAttrs(ctx, slog.LevelDebug, "span start",
		slog.String("component", component),
		slog.String("operation", operation),
	)

	return func(err error) {
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.Any("error", err))
		}
		logger.LogAttrs(ctx, level, "span end", attrs...)
	}
}

// RecordMetric emits one datapoint through the logger.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	logger, on := current()
	if !on {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for k, v := range labels {
		attrs = append(attrs, slog.String(k, v))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "metric", attrs...)
}
