package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/eldorado/internal/game"
	"github.com/lox/eldorado/internal/stats"
)

func testEvents(gameID string, n int) []game.Event {
	events := make([]game.Event, n)
	for i := range events {
		events[i] = game.Event{
			Type:       game.EventPlayerBid,
			Payload:    game.PlayerBidPayload{PlayerID: "p1", Bid: i},
			EventIndex: i,
			Timestamp:  int64(1700000000000 + i),
			GameID:     gameID,
		}
	}
	return events
}

func TestMemoryAppendAndLoad(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	events := testEvents("g1", 3)
	require.NoError(t, m.AppendEvents(ctx, "g1", events[:2]))
	require.NoError(t, m.AppendEvents(ctx, "g1", events[2:]))

	loaded, err := m.LoadEvents(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, ev := range loaded {
		assert.Equal(t, i, ev.EventIndex)
	}

	_, err = m.LoadEvents(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRejectsDuplicateIndex(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	events := testEvents("g1", 2)
	require.NoError(t, m.AppendEvents(ctx, "g1", events))

	err := m.AppendEvents(ctx, "g1", events)
	require.ErrorIs(t, err, ErrDuplicateEvent)

	loaded, err := m.LoadEvents(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, loaded, 2, "failed append must not partially apply")
}

func TestMemoryLifetimeRollup(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.UpdatePlayerLifetime(ctx, "u1", stats.PlayerGameStats{FinalScore: 10, IsWinner: true}))
	require.NoError(t, m.UpdatePlayerLifetime(ctx, "u1", stats.PlayerGameStats{FinalScore: -4}))
	require.NoError(t, m.UpdatePlayerLifetime(ctx, "", stats.PlayerGameStats{FinalScore: 99}), "anonymous players are skipped")

	lifetime, err := m.PlayerLifetime(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, lifetime.GamesPlayed)
	assert.Equal(t, 1, lifetime.GamesWon)
	assert.Equal(t, 10, lifetime.MaxScore)
	assert.Equal(t, -4, lifetime.MinScore)

	_, err = m.PlayerLifetime(ctx, "u2")
	require.ErrorIs(t, err, ErrNotFound)
}

// flakyStore fails the first n appends, then delegates to a Memory store.
type flakyStore struct {
	Store
	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyStore) AppendEvents(ctx context.Context, gameID string, events []game.Event) error {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.Store.AppendEvents(ctx, gameID, events)
}

func TestWriterRetriesWithBackoff(t *testing.T) {
	mem := NewMemory()
	flaky := &flakyStore{Store: mem, failures: 2}
	mock := quartz.NewMock(t)
	trap := mock.Trap().NewTimer()
	defer trap.Close()

	w := NewWriter(flaky, mock, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	w.Enqueue("g1", testEvents("g1", 2))

	// Two failures, two backoff waits (100ms then 200ms), then success.
	wantDelay := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	for _, want := range wantDelay {
		call := trap.MustWait(ctx)
		assert.Equal(t, want, call.Duration)
		call.MustRelease(ctx)
		mock.Advance(call.Duration).MustWait(ctx)
	}

	require.Eventually(t, func() bool {
		loaded, err := mem.LoadEvents(context.Background(), "g1")
		return err == nil && len(loaded) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestWriterTreatsDuplicateAsSuccess(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.AppendEvents(context.Background(), "g1", testEvents("g1", 2)))

	w := NewWriter(mem, quartz.NewMock(t), zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	// Re-enqueueing an already persisted batch must not spin on retries.
	w.Enqueue("g1", testEvents("g1", 2))

	require.Eventually(t, func() bool {
		return len(w.tasks) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
