// Package serrors provides errors carrying structured key-value context,
// adapted from the control-plane's error-handling convention: errors
// created here support errors.Is/As, render their context in Error(),
// and marshal cleanly into zap log fields.
package serrors

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxPair struct {
	Key   string
	Value any
}

type basicError struct {
	msg   string
	cause error
	ctx   []ctxPair
}

func mkCtx(errCtx []any) []ctxPair {
	n := len(errCtx) / 2
	ctx := make([]ctxPair, n)
	for i := 0; i < n; i++ {
		ctx[i] = ctxPair{Key: fmt.Sprint(errCtx[2*i]), Value: errCtx[2*i+1]}
	}
	sort.Slice(ctx, func(a, b int) bool { return ctx[a].Key < ctx[b].Key })
	return ctx
}

func (e *basicError) Error() string {
	var buf bytes.Buffer
	buf.WriteString(e.msg)
	if len(e.ctx) != 0 {
		buf.WriteString(" ")
		encodeContext(&buf, e.ctx)
	}
	if e.cause != nil {
		fmt.Fprintf(&buf, ": %s", e.cause)
	}
	return buf.String()
}

func (e *basicError) Unwrap() error { return e.cause }

// MarshalLogObject implements zapcore.ObjectMarshaler for structured logging.
func (e *basicError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("msg", e.msg)
	if e.cause != nil {
		if m, ok := e.cause.(zapcore.ObjectMarshaler); ok {
			if err := enc.AddObject("cause", m); err != nil {
				return err
			}
		} else {
			enc.AddString("cause", e.cause.Error())
		}
	}
	for _, p := range e.ctx {
		zap.Any(p.Key, p.Value).AddTo(enc)
	}
	return nil
}

// New creates a new error with a message and key-value context, with a
// stack trace attached via github.com/pkg/errors.
func New(msg string, errCtx ...any) error {
	return pkgerrors.WithStack(&basicError{msg: msg, ctx: mkCtx(errCtx)})
}

// Wrap associates msg and context with cause. The returned error
// satisfies errors.Is(result, cause).
func Wrap(msg string, cause error, errCtx ...any) error {
	return &basicError{msg: msg, cause: cause, ctx: mkCtx(errCtx)}
}

// IsTimeout reports whether err is or wraps a timeout error.
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// List aggregates multiple errors into one, e.g. per-key merge failures
// inside a single setKeys batch.
type List []error

func (e List) Error() string {
	s := make([]string, 0, len(e))
	for _, err := range e {
		s = append(s, err.Error())
	}
	return fmt.Sprintf("[ %s ]", strings.Join(s, "; "))
}

// ToError returns nil for an empty list, e itself otherwise.
func (e List) ToError() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func encodeContext(buf *bytes.Buffer, pairs []ctxPair) {
	buf.WriteString("{")
	for i, p := range pairs {
		fmt.Fprintf(buf, "%s=%v", p.Key, p.Value)
		if i != len(pairs)-1 {
			buf.WriteString("; ")
		}
	}
	buf.WriteString("}")
}
