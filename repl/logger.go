package repl

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

var nop = zap.NewNop()

// StoreLogger returns a context carrying l.
func StoreLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// AddFields returns a context whose logger carries fields.
func AddFields(ctx context.Context, fields ...zap.Field) context.Context {
	return StoreLogger(ctx, L(ctx).With(fields...))
}

// L returns the logger stored in ctx, or a no-op logger.
func L(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return nop
}
