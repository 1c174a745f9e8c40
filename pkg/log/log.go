// Package log provides the structured logger used across the agent. It
// wraps zap with a context-carried logger and a small variadic
// key-value API, matching the calling convention used throughout the
// control-plane components (log.Info("msg", "key", val, ...)).
package log

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface every component logs through.
type Logger interface {
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type logger struct {
	z *zap.Logger
}

func (l *logger) Debug(msg string, ctx ...any) { l.z.Debug(msg, convert(ctx)...) }
func (l *logger) Info(msg string, ctx ...any)  { l.z.Info(msg, convert(ctx)...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.z.Warn(msg, convert(ctx)...) }
func (l *logger) Error(msg string, ctx ...any) { l.z.Error(msg, convert(ctx)...) }

func (l *logger) With(ctx ...any) Logger {
	return &logger{z: l.z.With(convert(ctx)...)}
}

// convert turns a flat key,value,key,value... list into zap fields.
func convert(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = fmt.Sprint(ctx[i])
		}
		fields = append(fields, zap.Any(key, ctx[i+1]))
	}
	return fields
}

var root atomic.Pointer[logger]

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		z = zap.NewNop()
	}
	root.Store(&logger{z: z})
}

// Setup replaces the root logger with zap's development config (for
// interactive use) or its production config. If the build fails it
// falls back to a no-op logger.
func Setup(development bool) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, "log setup failed, falling back to nop:", err)
		z = zap.NewNop()
	}
	root.Store(&logger{z: z})
}

// Root returns the process-wide root logger.
func Root() Logger {
	return root.Load()
}

func Debug(msg string, ctx ...any) { Root().Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { Root().Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root().Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { Root().Error(msg, ctx...) }

type loggerContextKey struct{}

// CtxWith attaches logger to ctx; recovered later with FromCtx.
func CtxWith(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromCtx returns the logger embedded in ctx, or Root() if none was
// attached. Never returns nil.
func FromCtx(ctx context.Context) Logger {
	if ctx == nil {
		return Root()
	}
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return Root()
}

// WithLabels returns a context carrying a child logger with the given
// key-value labels added, along with the logger itself for convenience.
func WithLabels(ctx context.Context, ctxPairs ...any) (context.Context, Logger) {
	l := FromCtx(ctx).With(ctxPairs...)
	return CtxWith(ctx, l), l
}

var panicMu sync.Mutex

// HandlePanic recovers a panic in the calling goroutine, logs it with a
// stack trace, and re-panics so a supervising errgroup can still observe
// the failure. It must be deferred at the top of every event-loop
// goroutine.
func HandlePanic() {
	if r := recover(); r != nil {
		panicMu.Lock()
		Root().Error("panic", "recover", r, "stack", string(debug.Stack()))
		panicMu.Unlock()
		panic(r)
	}
}
