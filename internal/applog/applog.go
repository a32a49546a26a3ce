// Package applog generalizes the teacher's core.Logger interface
// (Debug/Info/Warn/Error/With) to a package-level factory, backed by
// go.uber.org/zap instead of a hand-rolled writer, per SPEC_FULL.md's
// ambient logging section.
package applog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the capability set every component in this module logs
// through. The shape matches the teacher's core.Logger exactly so
// components ported from it need no call-site changes.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production zap logger writing structured JSON to
// stdout at the given level ("debug", "info", "warn", "error").
func New(level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

// NewNop returns a logger that discards everything, matching the
// teacher's NopLogger, for use in tests.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// NewDev builds a console-formatted logger for local runs, mirroring
// the teacher's NewStdLogger but stderr-targeted as zap's development
// preset does.
func NewDev() Logger {
	z, _ := zap.NewDevelopment()
	return &zapLogger{sugar: z.Sugar()}
}

func (l *zapLogger) Debug(msg string, keyvals ...any) { l.sugar.Debugw(msg, keyvals...) }
func (l *zapLogger) Info(msg string, keyvals ...any)  { l.sugar.Infow(msg, keyvals...) }
func (l *zapLogger) Warn(msg string, keyvals ...any)  { l.sugar.Warnw(msg, keyvals...) }
func (l *zapLogger) Error(msg string, keyvals ...any) { l.sugar.Errorw(msg, keyvals...) }

func (l *zapLogger) With(keyvals ...any) Logger {
	return &zapLogger{sugar: l.sugar.With(keyvals...)}
}

// Exit flushes buffered log entries and exits the process with code.
func Exit(l Logger, code int) {
	if z, ok := l.(*zapLogger); ok {
		_ = z.sugar.Sync()
	}
	os.Exit(code)
}
