// Package store persists game event logs, finalized game summaries and
// per-player lifetime statistics.
package store

import (
	"context"
	"errors"

	"github.com/lox/eldorado/internal/game"
	"github.com/lox/eldorado/internal/stats"
)

var (
	// ErrDuplicateEvent indicates an append hit the (gameId, eventIndex)
	// unique key. The log is at-most-once; duplicates mean a replayed task.
	ErrDuplicateEvent = errors.New("store: duplicate event")

	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
)

// Store is the persistence contract rooms and the HTTP surface depend on.
// Implementations must be safe for concurrent use.
type Store interface {
	// AppendEvents writes a batch of committed events. The batch is
	// atomic: either every event lands or none do.
	AppendEvents(ctx context.Context, gameID string, events []game.Event) error

	// LoadEvents returns a game's full log in eventIndex order.
	LoadEvents(ctx context.Context, gameID string) ([]game.Event, error)

	// FinalizeGame records the summary of a completed game.
	FinalizeGame(ctx context.Context, summary *stats.GameSummary) error

	// UpdatePlayerLifetime folds one game line into the player's lifetime
	// aggregate, read-modify-write under the store's own locking.
	UpdatePlayerLifetime(ctx context.Context, userID string, line stats.PlayerGameStats) error

	// PlayerLifetime returns the player's lifetime aggregate.
	PlayerLifetime(ctx context.Context, userID string) (*stats.Lifetime, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	Close() error
}
