// Package shared holds process-level plumbing common to eldorado commands:
// logger construction and shutdown signal wiring.
package shared

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// SetupLogger builds the process logger with human-readable console output.
// The debug flag lowers the level floor; finer level control is applied by
// the caller from config.
func SetupLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// SignalContext returns a context cancelled by SIGINT or SIGTERM. The first
// signal starts a graceful shutdown; a second one falls through to the
// default handler and kills the process.
func SignalContext(logger zerolog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
		logger.Info().Msg("shutdown signal received")
	}()
	return ctx
}
