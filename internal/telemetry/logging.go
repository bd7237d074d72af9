package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel разбирает SHELLY_LOG_LEVEL (debug, info, warn, error; регистр
// не важен). Пустое или неизвестное значение — INFO.
func LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("SHELLY_LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SetupLogger создаёт логгер сервиса и делает его глобальным.
// Каждая запись несёт атрибут service.
//
// SHELLY_LOG_FORMAT:
//   - "json" (по умолчанию) — для production
//   - "text" — для локальной разработки
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stderr, os.Getenv("SHELLY_LOG_FORMAT"), LogLevel()).
		With("service", service)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер без побочных эффектов.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// WithRunID возвращает логгер с run_id.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithBatchID возвращает логгер с batch_id.
func WithBatchID(logger *slog.Logger, batchID string) *slog.Logger {
	return logger.With("batch_id", batchID)
}

// WithNodeID возвращает логгер с node_id и node_type.
func WithNodeID(logger *slog.Logger, nodeID, nodeType string) *slog.Logger {
	return logger.With("node_id", nodeID, "node_type", nodeType)
}

// WithFlowID возвращает логгер с flow_id.
func WithFlowID(logger *slog.Logger, flowID string) *slog.Logger {
	return logger.With("flow_id", flowID)
}
