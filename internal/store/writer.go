package store

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lox/eldorado/internal/game"
)

const (
	writerQueueSize  = 256
	retryBaseDelay   = 100 * time.Millisecond
	retryMaxDelay    = 5 * time.Second
	retryMaxAttempts = 8
)

type appendTask struct {
	gameID string
	events []game.Event
}

// Writer drains append tasks onto a Store in the background. Rooms enqueue
// and move on; failures are retried with exponential backoff and never
// surface to the game.
type Writer struct {
	store   Store
	clock   quartz.Clock
	logger  zerolog.Logger
	retries prometheus.Counter
	tasks   chan appendTask
}

// NewWriter builds a writer. retries may be nil when metrics are not wired.
func NewWriter(s Store, clock quartz.Clock, logger zerolog.Logger, retries prometheus.Counter) *Writer {
	return &Writer{
		store:   s,
		clock:   clock,
		logger:  logger.With().Str("component", "store-writer").Logger(),
		retries: retries,
		tasks:   make(chan appendTask, writerQueueSize),
	}
}

// Enqueue queues a batch for persistence. Blocks only when the queue is full,
// applying backpressure to the room rather than dropping events.
func (w *Writer) Enqueue(gameID string, events []game.Event) {
	if len(events) == 0 {
		return
	}
	w.tasks <- appendTask{gameID: gameID, events: events}
}

// Run processes tasks until ctx is cancelled, then makes one final pass over
// whatever is still queued so a clean shutdown loses nothing retryable.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case task := <-w.tasks:
			w.persist(ctx, task)
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		}
	}
}

func (w *Writer) drain() {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case task := <-w.tasks:
			if err := w.store.AppendEvents(flushCtx, task.gameID, task.events); err != nil && !errors.Is(err, ErrDuplicateEvent) {
				w.logger.Error().Err(err).Str("game_id", task.gameID).Msg("dropped events at shutdown")
			}
		default:
			return
		}
	}
}

func (w *Writer) persist(ctx context.Context, task appendTask) {
	delay := retryBaseDelay
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		err := w.store.AppendEvents(ctx, task.gameID, task.events)
		if err == nil {
			return
		}
		if errors.Is(err, ErrDuplicateEvent) {
			// Already persisted by an earlier attempt.
			w.logger.Warn().Err(err).Str("game_id", task.gameID).Msg("duplicate append")
			return
		}

		w.logger.Error().Err(err).
			Str("game_id", task.gameID).
			Int("attempt", attempt+1).
			Msg("append failed, retrying")
		if w.retries != nil {
			w.retries.Inc()
		}

		timer := w.clock.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
		if delay *= 2; delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	w.logger.Error().Str("game_id", task.gameID).Int("events", len(task.events)).
		Msg("giving up on append batch")
}
