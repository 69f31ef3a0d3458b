/*-------------------------------------------------------------------------
 *
 * logging.go
 *    Structured logging for NeuronHive
 *
 * Provides zerolog-based logging helpers with hive-wide context fields
 * (beekeeper_id, worker_id, analysis_id) carried through context.Context.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/metrics/logging.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	beekeeperIDKey contextKey = "beekeeper_id"
	workerIDKey    contextKey = "worker_id"
	analysisIDKey  contextKey = "analysis_id"
)

var rootLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

/* InitLogging configures the global logger level and output format */
func InitLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "console" {
		rootLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	} else {
		rootLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

/* WithBeekeeperID adds the beekeeper run id to the log context */
func WithBeekeeperID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, beekeeperIDKey, id)
}

/* WithWorkerID adds a worker id to the log context */
func WithWorkerID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

/* WithAnalysisID adds an analysis id to the log context */
func WithAnalysisID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, analysisIDKey, id)
}

/* LoggerFromContext creates a logger carrying the hive context fields */
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	logger := rootLogger
	if id, ok := ctx.Value(beekeeperIDKey).(string); ok && id != "" {
		logger = logger.With().Str("beekeeper_id", id).Logger()
	}
	if id, ok := ctx.Value(workerIDKey).(int64); ok {
		logger = logger.With().Int64("worker_id", id).Logger()
	}
	if id, ok := ctx.Value(analysisIDKey).(int64); ok {
		logger = logger.With().Int64("analysis_id", id).Logger()
	}
	return logger
}

/* LogWithContext logs a message with context fields */
func LogWithContext(ctx context.Context, level zerolog.Level, message string, fields map[string]interface{}) {
	logger := LoggerFromContext(ctx)
	event := logger.WithLevel(level)

	for key, value := range fields {
		event = event.Interface(key, value)
	}

	event.Msg(message)
}

/* DebugWithContext logs a debug message with context */
func DebugWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.DebugLevel, message, fields)
}

/* InfoWithContext logs an info message with context */
func InfoWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.InfoLevel, message, fields)
}

/* WarnWithContext logs a warning message with context */
func WarnWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.WarnLevel, message, fields)
}

/* ErrorWithContext logs an error message with context */
func ErrorWithContext(ctx context.Context, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogWithContext(ctx, zerolog.ErrorLevel, message, fields)
}
