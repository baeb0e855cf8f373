package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a Logger for the given format ("text", "json" or "zap") and
// level ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func New(format, level string, w io.Writer) (Logger, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel(level)}))), nil
	case "json":
		return NewSlogLogger(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)}))), nil
	case "zap":
		return NewZapLogger(newZap(level, w)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func zapLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newZap(level string, w io.Writer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(zapLevel(level)))
	return zap.New(core)
}
