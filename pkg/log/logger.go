// Package log provides structured logging utilities for the ECL ledger node.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// Create handler based on format
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// Create base logger with service context
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

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	// Add request ID if available
	if reqID := ctx.Value("request_id"); reqID != nil {
		logger = logger.With("request_id", reqID)
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

// WithWallet returns a logger with wallet-specific fields
func (l *Logger) WithWallet(address string) *Logger {
	return l.WithFields("wallet_address", address)
}

// WithTask returns a logger with claim/task-specific fields
func (l *Logger) WithTask(taskID, taskType string) *Logger {
	return l.WithFields("task_id", taskID, "task_type", taskType)
}

// WithBlock returns a logger with block-specific fields
func (l *Logger) WithBlock(hash string, index uint64) *Logger {
	return l.WithFields("block_hash", hash, "block_index", index)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Ledger-specific logging helpers

// LogClaimSubmission logs a claim entering the validation pool
func (l *Logger) LogClaimSubmission(walletAddr, taskID, taskType string, reward, stake uint64) {
	l.Info("claim submitted",
		"wallet_address", walletAddr,
		"task_id", taskID,
		"task_type", taskType,
		"reward", reward,
		"stake", stake,
	)
}

// LogValidationOutcome logs the result of a compliance evaluation
func (l *Logger) LogValidationOutcome(taskID, status, reason string) {
	l.Info("validation outcome",
		"task_id", taskID,
		"status", status,
		"reason", reason,
	)
}

// LogBlockMined logs a newly mined block
func (l *Logger) LogBlockMined(hash string, index uint64, txCount int, rewardTotal uint64) {
	l.Info("block mined",
		"block_hash", hash,
		"block_index", index,
		"tx_count", txCount,
		"reward_total", rewardTotal,
	)
}

// LogBlockDiscarded logs an incoming block rejected for continuity
func (l *Logger) LogBlockDiscarded(hash, prevHash, tipHash string) {
	l.Warn("block discarded",
		"block_hash", hash,
		"block_prev_hash", prevHash,
		"tip_hash", tipHash,
	)
}

// LogPeerMessage logs an inbound peer envelope (debug level)
func (l *Logger) LogPeerMessage(nodeID, kind string, size int) {
	l.Debug("peer message",
		"origin_node", nodeID,
		"kind", kind,
		"size", size,
	)
}
