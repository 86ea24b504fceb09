// Package logging builds the shared zap logger. Hooks run on the session's
// critical path, so logger construction never fails the caller: any problem
// opening the log file degrades to a no-op logger.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New opens a JSON file logger at path, creating parent directories as
// needed. Verbose lowers the floor to debug.
func New(path, level string, verbose bool) *zap.Logger {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zap.NewNop()
	}

	lvl := parseLevel(level)
	if verbose {
		lvl = zapcore.DebugLevel
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.Lock(f),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core)
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
