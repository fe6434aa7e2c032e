package log

import (
	"context"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

type ctxKey string

const (
	SessionIDKey ctxKey = "session_id"
	CharacterKey ctxKey = "character"
	ClientIDKey  ctxKey = "client_id"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	Init(os.Getenv("DEBUG") == "true")
}

// Init replaces the process logger. Call it once the configuration, .env
// included, is loaded.
func Init(debug bool) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// Replace swaps the process logger for l until restore is called.
func Replace(l *zap.Logger) (restore func()) {
	prev := logger.Swap(l)
	return func() { logger.Store(prev) }
}

// WithValue stores a log field on the context so WithCtx can pick it up.
func WithValue(ctx context.Context, key ctxKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

func WithCtx(ctx context.Context) *zap.Logger {
	fields := []zap.Field{}

	for _, key := range []ctxKey{ClientIDKey, SessionIDKey, CharacterKey} {
		if v := ctx.Value(key); v != nil {
			fields = append(fields, zap.Any(string(key), v))
		}
	}

	return logger.Load().With(fields...)
}

func With(fields ...zap.Field) *zap.Logger {
	return logger.Load().With(fields...)
}

// Sync flushes buffered entries, call it before exiting.
func Sync() {
	_ = logger.Load().Sync()
}
