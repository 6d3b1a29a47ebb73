package buildsys

import (
	"context"

	"github.com/aidarkhanov/nanoid"
	"github.com/rs/zerolog"
)

type logKey struct{}

var nopLogger = zerolog.Nop()

func log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logKey{})
	if logger == nil {
		return &nopLogger
	}

	return logger.(*zerolog.Logger)
}

// Log returns the logger attached to ctx. Plugins use it to report their progress.
func Log(ctx context.Context) *zerolog.Logger {
	return log(ctx)
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}

// WithRunID derives a logger tagged with a fresh run ID and attaches it to the context
func WithRunID(ctx context.Context) (context.Context, string) {
	runID := nanoid.New()
	logger := log(ctx).With().Str("run", runID).Logger()
	return WithLogger(ctx, &logger), runID
}
