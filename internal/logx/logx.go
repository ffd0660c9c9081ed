// ABOUTME: Two-sink zap logger setup with colorized console output
// ABOUTME: Console and file sinks are independently leveled, both off by default
package logx

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogFile is where the file sink writes when no path is given.
const DefaultLogFile = "./megamicros.log"

// Config selects the level of each sink. An empty level disables the
// sink entirely, so the zero Config produces a logger that emits nothing.
type Config struct {
	ConsoleLevel string
	FileLevel    string
	FilePath     string
}

// New builds a logger teeing a colorized console core and a plain-text
// append-mode file core. Callers hold the returned logger and pass it
// down explicitly; there is no package-level logger.
func New(cfg Config) (*zap.Logger, error) {
	var cores []zapcore.Core

	if cfg.ConsoleLevel != "" {
		lvl, err := ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return nil, err
		}

		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			lvl,
		))
	}

	if cfg.FileLevel != "" {
		lvl, err := ParseLevel(cfg.FileLevel)
		if err != nil {
			return nil, err
		}

		path := cfg.FilePath
		if path == "" {
			path = DefaultLogFile
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(f),
			lvl,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// ParseLevel maps a level name ("debug".."fatal") or its numeric form
// ("-1".."5") to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InvalidLevel, fmt.Errorf("empty log level")
	}

	if n, err := strconv.Atoi(s); err == nil {
		lvl := zapcore.Level(n)
		if lvl < zapcore.DebugLevel || lvl > zapcore.FatalLevel {
			return zapcore.InvalidLevel, fmt.Errorf("unknown log level: %d", n)
		}
		return lvl, nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InvalidLevel, fmt.Errorf("unknown log level: %q", s)
	}
	return lvl, nil
}

// LevelName is the inverse of ParseLevel for numeric levels.
func LevelName(lvl zapcore.Level) string {
	return lvl.String()
}

// DumpStack logs the calling goroutine's stack, but only when the
// logger has its debug level enabled. Meant for failure paths where a
// trace helps and silence is fine otherwise.
func DumpStack(log *zap.Logger) {
	if log.Core().Enabled(zapcore.DebugLevel) {
		log.Debug("stack trace", zap.Stack("stack"))
	}
}
