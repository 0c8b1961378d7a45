// Package logger builds the engine's zap loggers and holds the process-wide
// instance used by the CLI. Library consumers construct their own with New
// and pass it down; the package-level helpers exist for main packages only.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	Level    string // debug, info, warn, error
	Format   string // json, console
	Output   string // stdout, file, both
	FilePath string

	// Rotation settings for file output; zero values fall back to
	// lumberjack's defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New constructs a logger from the config. Unrecognized level or format
// strings fall back to info/console rather than failing: a misconfigured
// logger should still log.
func New(cfg Config) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var cores []zapcore.Core
	for _, sink := range sinks(cfg) {
		cores = append(cores, zapcore.NewCore(encoder(cfg.Format), sink, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func encoder(format string) zapcore.Encoder {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(enc)
	}
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(enc)
}

func sinks(cfg Config) []zapcore.WriteSyncer {
	var out []zapcore.WriteSyncer
	if cfg.Output != "file" {
		out = append(out, zapcore.AddSync(os.Stdout))
	}
	if (cfg.Output == "file" || cfg.Output == "both") && cfg.FilePath != "" {
		out = append(out, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}))
	}
	if len(out) == 0 {
		out = append(out, zapcore.AddSync(os.Stdout))
	}
	return out
}

var (
	global *zap.Logger
	once   sync.Once
)

// Init builds the process-wide logger. Subsequent calls are no-ops.
func Init(cfg *Config) {
	once.Do(func() {
		if cfg == nil {
			cfg = &Config{}
		}
		global = New(*cfg)
	})
}

// L returns the process-wide logger, initializing a default one if needed.
func L() *zap.Logger {
	Init(nil)
	return global
}

// Named returns a child of the process-wide logger.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// helper skips the facade frame so call sites are attributed correctly.
func helper() *zap.Logger {
	return L().WithOptions(zap.AddCallerSkip(1))
}

// Debug logs through the process-wide logger.
func Debug(msg string, fields ...zap.Field) { helper().Debug(msg, fields...) }

// Info logs through the process-wide logger.
func Info(msg string, fields ...zap.Field) { helper().Info(msg, fields...) }

// Warn logs through the process-wide logger.
func Warn(msg string, fields ...zap.Field) { helper().Warn(msg, fields...) }

// Error logs through the process-wide logger.
func Error(msg string, fields ...zap.Field) { helper().Error(msg, fields...) }

// Fatal logs through the process-wide logger, then exits.
func Fatal(msg string, fields ...zap.Field) { helper().Fatal(msg, fields...) }

// Sync flushes buffered entries on the process-wide logger.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}
