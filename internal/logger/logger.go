// Package logger wraps zap with the fields/context conventions used
// throughout the orchestration core.
package logger

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	RequestIDKey     contextKey = "request_id"
)

// Config controls the encoder and output of a Logger.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// Logger wraps a zap.Logger with a chainable-fields convenience API.
type Logger struct {
	zap    *zap.Logger
	sugar  *zap.SugaredLogger
	fields []zap.Field
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// Default returns a process-wide Logger, built from environment defaults
// on first use unless SetDefault was called. Components take a *Logger via
// constructor injection and fall back to this when given nil.
func Default() *Logger {
	defaultOnce.Do(func() {
		l, err := NewLogger(Config{Level: "info", Format: detectLogFormat()})
		if err != nil {
			zl, _ := zap.NewProduction()
			l = &Logger{zap: zl, sugar: zl.Sugar()}
		}
		defaultLog = l
	})
	return defaultLog
}

// SetDefault overrides the process-wide default logger.
func SetDefault(l *Logger) {
	defaultLog = l
}

// NewLogger builds a Logger from Config, choosing a JSON encoder when
// Format is "json" and a colored console encoder otherwise.
func NewLogger(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{zap: zl, sugar: zl.Sugar()}, nil
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func detectLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if os.Getenv("DISCUSSORD_ENV") == "production" {
		return "json"
	}
	return "console"
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithFields returns a derived Logger carrying the given fields on every
// subsequent call.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	all := append(append([]zap.Field{}, l.fields...), fields...)
	return &Logger{zap: l.zap.With(fields...), sugar: l.sugar, fields: all}
}

// WithContext extracts correlation/request ids from ctx, if present, and
// attaches them as fields.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []zap.Field
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("correlation_id", v))
	}
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields...)
}

// WithError returns a derived Logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(zap.Error(err))
}

// WithDiscussionID is a convenience field helper used across the orchestrator.
func (l *Logger) WithDiscussionID(id string) *Logger {
	return l.WithFields(zap.String("discussion_id", id))
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zap.Fatal(msg, fields...) }

func (l *Logger) Zap() *zap.Logger            { return l.zap }
func (l *Logger) Sugar() *zap.SugaredLogger   { return l.sugar }

// elapsedSince is a small helper used by callers logging durations.
func elapsedSince(t time.Time) time.Duration { return time.Since(t) }
