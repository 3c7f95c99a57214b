package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the service. Every entry
// carries a stable event key so downstream log queries don't depend on
// message wording.
type Logger interface {
	DebugObj(msg, key string, obj map[string]any)
	InfoObj(msg, key string, obj map[string]any)
	WarnObj(msg, key string, obj map[string]any)
	ErrorObj(msg, key string, obj map[string]any)
	Sync() error
}

// Options configures the zap backed logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a zap backed Logger.
func New(opts Options) (Logger, error) {
	level := zapcore.InfoLevel
	if lv := strings.TrimSpace(opts.Level); lv != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(lv))); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	if z == nil {
		return NopLogger{}
	}
	return &zapLogger{z: z}
}

func (l *zapLogger) DebugObj(msg, key string, obj map[string]any) {
	l.z.Debug(msg, fields(key, obj)...)
}

func (l *zapLogger) InfoObj(msg, key string, obj map[string]any) {
	l.z.Info(msg, fields(key, obj)...)
}

func (l *zapLogger) WarnObj(msg, key string, obj map[string]any) {
	l.z.Warn(msg, fields(key, obj)...)
}

func (l *zapLogger) ErrorObj(msg, key string, obj map[string]any) {
	l.z.Error(msg, fields(key, obj)...)
}

func (l *zapLogger) Sync() error { return l.z.Sync() }

func fields(key string, obj map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(obj)+1)
	if key != "" {
		out = append(out, zap.String("event", key))
	}
	for k, v := range obj {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) DebugObj(string, string, map[string]any) {}
func (NopLogger) InfoObj(string, string, map[string]any)  {}
func (NopLogger) WarnObj(string, string, map[string]any)  {}
func (NopLogger) ErrorObj(string, string, map[string]any) {}
func (NopLogger) Sync() error                             { return nil }

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}
