package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/eldorado/internal/game"
)

// DefaultWakeDelay spaces bot actions out so games read naturally.
const DefaultWakeDelay = 500 * time.Millisecond

// CommandPoster is the slice of a room the manager posts decisions to.
// Implementations enqueue onto the room's inbound channel; the manager never
// mutates state itself.
type CommandPoster interface {
	PostBid(playerID string, value int)
	PostPlay(playerID, cardID string)
}

var botNames = []string{
	"Armadillo", "Caracara", "Condor", "Iguana", "Jaguar",
	"Macaw", "Ocelot", "Puma", "Tapir", "Vicuna",
}

// Profile returns the canned profile for the nth bot seat in a game.
func Profile(n int) game.PlayerProfile {
	name := botNames[n%len(botNames)]
	if n >= len(botNames) {
		name = fmt.Sprintf("%s %d", name, n/len(botNames)+1)
	}
	return game.PlayerProfile{
		DisplayName: name,
		AvatarSeed:  fmt.Sprintf("bot-%d", n),
		Color:       "#8d6e63",
	}
}

// PlayerID returns the stable player id for the nth bot seat.
func PlayerID(gameID string, n int) string {
	return fmt.Sprintf("bot:%s:%d", gameID, n)
}

// Manager schedules and executes decisions for bot seats. One manager serves
// the whole process; per-call state arrives in the snapshot.
type Manager struct {
	strategy Strategy
	clock    quartz.Clock
	logger   zerolog.Logger
	delay    time.Duration
	timeout  time.Duration
}

// NewManager builds a manager driving every bot with the given strategy.
func NewManager(strategy Strategy, clock quartz.Clock, logger zerolog.Logger, delay time.Duration) *Manager {
	if delay <= 0 {
		delay = DefaultWakeDelay
	}
	return &Manager{
		strategy: strategy,
		clock:    clock,
		logger:   logger.With().Str("component", "bot-manager").Logger(),
		delay:    delay,
		timeout:  DefaultRemoteTimeout + time.Second,
	}
}

// Wake schedules a decision for the bot from the given snapshot. The snapshot
// is immutable; if the room has moved on by the time the command arrives, the
// engine rejects it and the room re-wakes whoever is actually due.
func (m *Manager) Wake(room CommandPoster, snapshot *game.GameState, botID string) {
	m.clock.AfterFunc(m.delay, func() {
		m.decide(room, snapshot, botID)
	})
}

func (m *Manager) decide(room CommandPoster, s *game.GameState, botID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	logger := m.logger.With().Str("game_id", s.GameID).Str("player_id", botID).Logger()

	ps := s.PlayerStates[botID]
	if ps == nil || s.RoundState == nil {
		logger.Warn().Msg("bot woken without round state")
		return
	}
	bc := SnapshotContext(s, botID)

	switch s.Phase {
	case game.PhaseBidding:
		bid, err := m.strategy.Bid(ctx, ps.Hand, bc)
		if err != nil {
			logger.Error().Err(err).Msg("bid decision failed")
			return
		}
		logger.Debug().Int("bid", bid).Msg("bot bids")
		room.PostBid(botID, bid)

	case game.PhasePlaying:
		card, err := m.strategy.PlayCard(ctx, ps.Hand, bc)
		if err != nil {
			logger.Error().Err(err).Msg("play decision failed")
			return
		}
		logger.Debug().Str("card", card.ID).Msg("bot plays")
		room.PostPlay(botID, card.ID)

	default:
		logger.Warn().Str("phase", string(s.Phase)).Msg("bot woken in idle phase")
	}
}
