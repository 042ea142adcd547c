package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/eldorado/internal/deck"
)

func TestReplay_MatchesLiveRun(t *testing.T) {
	live, log := driveScenarioA(t)

	replayed, err := Replay(log)
	require.NoError(t, err)

	assert.Equal(t, PhaseCompleted, replayed.Phase)
	assert.Equal(t, live.CumulativeScores, replayed.CumulativeScores)
	require.Len(t, replayed.RoundSummaries, 1)
	assert.Equal(t, live.RoundSummaries[0], replayed.RoundSummaries[0])
	assert.Equal(t, live.RoundState.CompletedTricks, replayed.RoundState.CompletedTricks)
	for id, ps := range live.PlayerStates {
		rs := replayed.PlayerStates[id]
		require.NotNil(t, rs)
		assert.Equal(t, ps.TricksWon, rs.TricksWon)
		assert.Equal(t, ps.RoundScoreDelta, rs.RoundScoreDelta)
		assert.Empty(t, rs.Hand)
	}
}

func TestReplay_SurvivesJSONRoundTrip(t *testing.T) {
	live, log := driveScenarioA(t)

	data, err := json.Marshal(log)
	require.NoError(t, err)
	var decoded []Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	replayed, err := Replay(decoded)
	require.NoError(t, err)
	assert.Equal(t, live.CumulativeScores, replayed.CumulativeScores)
	assert.Equal(t, PhaseCompleted, replayed.Phase)
}

func TestReplay_EveryPrefixHoldsInvariants(t *testing.T) {
	_, log := driveScenarioA(t)

	var s *GameState
	var err error
	for i, ev := range log {
		s, err = applyEvent(s, ev)
		require.NoError(t, err, "event %d (%s)", i, ev.Type)
		require.NoError(t, CheckInvariants(s), "after event %d (%s)", i, ev.Type)
	}
}

// A log cut between ROUND_STARTED and CARDS_DEALT is a valid prefix: bidding
// is open but no hands exist yet.
func TestReplay_PrefixEndingBeforeDeal(t *testing.T) {
	_, log := driveScenarioA(t)

	var prefix []Event
	for _, ev := range log {
		prefix = append(prefix, ev)
		if ev.Type == EventRoundStarted {
			break
		}
	}

	s, err := Replay(prefix)
	require.NoError(t, err)
	assert.Equal(t, PhaseBidding, s.Phase)
	for _, id := range s.ActivePlayers() {
		assert.Empty(t, s.PlayerStates[id].Hand)
	}
}

func TestReplay_DenseIndices(t *testing.T) {
	_, log := driveScenarioA(t)
	for i, ev := range log {
		assert.Equal(t, i, ev.EventIndex)
	}
}

func TestReplay_RejectsCorruptLogs(t *testing.T) {
	_, log := driveScenarioA(t)

	t.Run("empty", func(t *testing.T) {
		_, err := Replay(nil)
		require.ErrorIs(t, err, ErrCorruptLog)
	})

	t.Run("missing opener", func(t *testing.T) {
		_, err := Replay(log[1:])
		require.ErrorIs(t, err, ErrCorruptLog)
	})

	t.Run("gap in indices", func(t *testing.T) {
		gapped := append([]Event(nil), log...)
		gapped[3].EventIndex = 99
		_, err := Replay(gapped)
		require.ErrorIs(t, err, ErrCorruptLog)
	})

	t.Run("mixed game ids", func(t *testing.T) {
		mixed := append([]Event(nil), log...)
		mixed[2].GameID = "g-other"
		_, err := Replay(mixed)
		require.ErrorIs(t, err, ErrCorruptLog)
	})

	t.Run("play without holding the card", func(t *testing.T) {
		broken := append([]Event(nil), log...)
		for i, ev := range broken {
			if ev.Type != EventCardPlayed {
				continue
			}
			p, ok := PayloadAs[CardPlayedPayload](ev)
			require.True(t, ok)
			forged := *p
			forged.Card = card(7, "hearts", "A")
			broken[i].Payload = forged
			break
		}
		_, err := Replay(broken)
		require.ErrorIs(t, err, ErrCorruptLog)
	})
}

func TestReplay_DetectsInvariantViolation(t *testing.T) {
	_, log := driveScenarioA(t)

	// Forge a deal that shorts p1 a card, then cut the log right after
	// bidding closes. Each event applies cleanly but the resulting
	// mid-round state no longer conserves cards.
	var tampered []Event
	for _, ev := range log {
		if ev.Type == EventCardsDealt {
			p, ok := PayloadAs[CardsDealtPayload](ev)
			require.True(t, ok)
			forged := CardsDealtPayload{Hands: map[string][]deck.Card{
				"p1": nil,
				"p2": p.Hands["p2"],
			}}
			ev.Payload = forged
		}
		tampered = append(tampered, ev)
		if ev.Type == EventBiddingComplete {
			break
		}
	}

	_, err := Replay(tampered)
	require.ErrorIs(t, err, ErrInvariantViolation)
}
