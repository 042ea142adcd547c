package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lox/eldorado/internal/game"
	"github.com/lox/eldorado/internal/stats"
)

// Memory is an in-process Store for tests and DATABASE_URL-less dev runs.
type Memory struct {
	mu        sync.RWMutex
	events    map[string][]game.Event
	summaries map[string]*stats.GameSummary
	lifetimes map[string]*stats.Lifetime
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events:    make(map[string][]game.Event),
		summaries: make(map[string]*stats.GameSummary),
		lifetimes: make(map[string]*stats.Lifetime),
	}
}

func (m *Memory) AppendEvents(_ context.Context, gameID string, events []game.Event) error {
	if len(events) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.events[gameID]
	for _, ev := range events {
		if ev.EventIndex < len(log) {
			return fmt.Errorf("%w: game %s index %d", ErrDuplicateEvent, gameID, ev.EventIndex)
		}
	}
	m.events[gameID] = append(log, events...)
	return nil
}

func (m *Memory) LoadEvents(_ context.Context, gameID string) ([]game.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log, ok := m.events[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	return append([]game.Event(nil), log...), nil
}

func (m *Memory) FinalizeGame(_ context.Context, summary *stats.GameSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.summaries[summary.GameID]; !done {
		m.summaries[summary.GameID] = summary
	}
	return nil
}

func (m *Memory) UpdatePlayerLifetime(_ context.Context, userID string, line stats.PlayerGameStats) error {
	if userID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	lifetime := m.lifetimes[userID]
	if lifetime == nil {
		lifetime = &stats.Lifetime{}
		m.lifetimes[userID] = lifetime
	}
	lifetime.ApplyGame(line)
	lifetime.LastPlayedAt = time.Now().UnixMilli()
	return nil
}

func (m *Memory) PlayerLifetime(_ context.Context, userID string) (*stats.Lifetime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lifetime, ok := m.lifetimes[userID]
	if !ok {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, userID)
	}
	cp := *lifetime
	return &cp, nil
}

// GameSummary returns a finalized summary, nil if the game is not finalized.
func (m *Memory) GameSummary(gameID string) *stats.GameSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summaries[gameID]
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
