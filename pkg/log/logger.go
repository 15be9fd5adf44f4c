// Package log provides structured logging for the noso2m miner.
// It wraps the standard library's slog package with miner-specific helpers.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with service identity and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a logger writing to stdout
func New(service, version, level, format string) *Logger {
	return NewWithWriter(os.Stdout, service, version, level, format)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, service, version, level, format string) *Logger {
	logLevel := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger:  slog.New(handler).With("service", service, "version", version),
		service: service,
		version: version,
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return NewWithWriter(io.Discard, "nop", "", "error", "text")
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
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

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// WithBlock returns a logger tagged with the block being mined
func (l *Logger) WithBlock(block uint32) *Logger {
	return l.WithFields("block", block)
}

// WithPeer returns a logger tagged with a node or pool endpoint
func (l *Logger) WithPeer(name, host, port string) *Logger {
	return l.WithFields("peer", name, "peer_addr", host+":"+port)
}

// WithThread returns a logger tagged with a worker thread
func (l *Logger) WithThread(minerID, threadID uint32) *Logger {
	return l.WithFields("miner_id", minerID, "thread_id", threadID)
}

// LogDuration logs the duration of an operation
func (l *Logger) LogDuration(operation string, d time.Duration) {
	l.Debug("operation completed",
		"operation", operation,
		"duration_ms", float64(d.Nanoseconds())/1e6,
	)
}

// LogSolution logs a solution found by a worker (debug level)
func (l *Logger) LogSolution(block uint32, base, hash, diff string) {
	l.Debug("solution found",
		"block", block,
		"base", base,
		"hash", hash,
		"diff", diff,
	)
}

// LogSubmission logs the outcome of a submitted solution
func (l *Logger) LogSubmission(block uint32, base, diff, status string, code int) {
	level := slog.LevelInfo
	if status != "accepted" {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "solution submitted",
		"block", block,
		"base", base,
		"diff", diff,
		"status", status,
		"code", code,
	)
}

// LogBlockSummary logs the closing numbers of a mining block
func (l *Logger) LogBlockSummary(block uint32, hashes uint64, hashrate float64, accepted, rejected, failed int) {
	l.Info("block closed",
		"block", block,
		"hashes", hashes,
		"hashrate", hashrate,
		"accepted", accepted,
		"rejected", rejected,
		"failed", failed,
	)
}

// LogConnection logs a peer connectivity event
func (l *Logger) LogConnection(event, remoteAddr string) {
	l.Debug("connection event",
		"event", event,
		"remote_addr", remoteAddr,
	)
}
