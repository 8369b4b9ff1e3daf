// Package log provides structured logging utilities for the DUCO miner.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bardlex/ducominer/pkg/errors"
)

type contextKey string

// CycleIDKey tags a context with the job cycle it belongs to
const CycleIDKey contextKey = "cycle_id"

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger writing to stdout
func New(service, version, level, format string) *Logger {
	return NewWithWriter(os.Stdout, service, version, level, format)
}

// NewWithWriter creates a new logger writing to w
func NewWithWriter(w io.Writer, service, version, level, format string) *Logger {
	var handler slog.Handler

	logLevel := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, "test", "test", "error", "json")
}

// ParseLevel maps a textual level to slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if cycleID := ctx.Value(CycleIDKey); cycleID != nil {
		logger = logger.With("cycle_id", cycleID)
	}

	return &Logger{
		Logger:  logger,
		service: l.service,
		version: l.version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithMiner returns a logger with the pool account and rig fields
func (l *Logger) WithMiner(username, rigID string) *Logger {
	return l.WithFields("username", username, "rig_id", rigID)
}

// WithError returns a logger with the error and, for a ServiceError, its
// context map
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	fields := []any{"error", err.Error()}
	if errCtx := errors.GetContext(err); len(errCtx) > 0 {
		fields = append(fields, "error_context", errCtx)
	}
	return l.WithFields(fields...)
}

// LogDuration logs the duration of an operation
func (l *Logger) LogDuration(operation string, duration int64) {
	l.Info("operation completed",
		"operation", operation,
		"duration_ns", duration,
		"duration_ms", float64(duration)/1e6,
	)
}

// LogConnection logs connection events
func (l *Logger) LogConnection(event, remoteAddr string) {
	l.Info("connection event",
		"event", event,
		"remote_addr", remoteAddr,
	)
}

// LogProtocolMessage logs DUCO protocol lines (debug level)
func (l *Logger) LogProtocolMessage(direction, message string) {
	l.Debug("protocol message",
		"direction", direction,
		"message", message,
	)
}

// LogJob logs a job received from the pool
func (l *Logger) LogJob(seed, target string, difficulty uint64) {
	l.Info("job received",
		"difficulty", difficulty,
		"seed_prefix", prefix(seed, 20),
		"target_prefix", prefix(target, 20),
	)
}

// LogShareSubmission logs the pool's verdict on a submitted share
func (l *Logger) LogShareSubmission(nonce uint64, hashrate float64, status string, reward float64) {
	l.Info("share submission",
		"nonce", nonce,
		"hashrate", hashrate,
		"status", status,
		"reward", reward,
	)
}

// LogStats logs a periodic statistics report
func (l *Logger) LogStats(accepted, rejected uint64, hashrate, avgHashrate, earnedTotal float64, uptime, state string) {
	l.Info("mining stats",
		"state", state,
		"shares_accepted", accepted,
		"shares_rejected", rejected,
		"hashrate", hashrate,
		"avg_hashrate", avgHashrate,
		"earned_total", earnedTotal,
		"uptime", uptime,
	)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
