package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/eldorado/internal/game"
)

func completedGame() *game.GameState {
	s := &game.GameState{
		GameID: "g-stats",
		Config: game.Config{RoundCount: 3, MinPlayers: 2, MaxPlayers: 2},
		Phase:  game.PhaseCompleted,
		Players: []game.PlayerInGame{
			{PlayerID: "p1", SeatIndex: 0, Profile: game.PlayerProfile{UserID: "u1"}},
			{PlayerID: "p2", SeatIndex: 1, Profile: game.PlayerProfile{UserID: "u2"}},
		},
		PlayerStates: map[string]*game.PlayerState{
			"p1": {PlayerID: "p1"},
			"p2": {PlayerID: "p2"},
		},
		CumulativeScores: map[string]int{"p1": 19, "p2": -5},
		RoundSummaries: []game.RoundSummary{
			{
				RoundIndex: 0,
				Bids:       map[string]int{"p1": 2, "p2": 1},
				TricksWon:  map[string]int{"p1": 2, "p2": 1},
				Deltas:     map[string]int{"p1": 7, "p2": 6},
			},
			{
				RoundIndex: 1,
				Bids:       map[string]int{"p1": 1, "p2": 1},
				TricksWon:  map[string]int{"p1": 1, "p2": 0},
				Deltas:     map[string]int{"p1": 6, "p2": -6},
			},
			{
				RoundIndex: 2,
				Bids:       map[string]int{"p1": 1, "p2": 0},
				TricksWon:  map[string]int{"p1": 1, "p2": 1},
				Deltas:     map[string]int{"p1": 6, "p2": -5},
			},
		},
	}
	return s
}

func statsFor(t *testing.T, summary *GameSummary, playerID string) PlayerGameStats {
	t.Helper()
	for _, line := range summary.Players {
		if line.PlayerID == playerID {
			return line
		}
	}
	t.Fatalf("no stats line for %s", playerID)
	return PlayerGameStats{}
}

func TestFinalize(t *testing.T) {
	s := completedGame()
	log := []game.Event{
		{Type: game.EventInvalidAction, GameID: s.GameID, Payload: game.InvalidActionPayload{
			PlayerID: "p2", Action: "PLAY", Code: "MUST_FOLLOW_SUIT",
		}},
		{Type: game.EventInvalidAction, GameID: s.GameID, Payload: game.InvalidActionPayload{
			PlayerID: "p2", Action: "BID", Code: "INVALID_BID",
		}},
	}

	summary, err := Finalize(s, log)
	require.NoError(t, err)
	require.Len(t, summary.Players, 2)

	p1 := statsFor(t, summary, "p1")
	assert.Equal(t, 19, p1.FinalScore)
	assert.Equal(t, 4, p1.TotalTricks)
	assert.Equal(t, 2, p1.HighestBid)
	assert.Equal(t, 3, p1.LongestWinStreak)
	assert.Equal(t, 0, p1.LongestLossStreak)
	assert.Equal(t, 0, p1.Misplays)
	assert.True(t, p1.IsWinner)
	assert.Equal(t, "u1", p1.UserID)

	p2 := statsFor(t, summary, "p2")
	assert.Equal(t, -5, p2.FinalScore)
	assert.Equal(t, 2, p2.TotalTricks)
	assert.Equal(t, 1, p2.HighestBid)
	assert.Equal(t, 1, p2.LongestWinStreak)
	assert.Equal(t, 2, p2.LongestLossStreak)
	assert.Equal(t, 2, p2.Misplays)
	assert.False(t, p2.IsWinner)
}

func TestFinalizeTiedWinners(t *testing.T) {
	s := completedGame()
	s.CumulativeScores = map[string]int{"p1": 5, "p2": 5}
	s.RoundSummaries = []game.RoundSummary{{
		Bids:      map[string]int{"p1": 0, "p2": 0},
		TricksWon: map[string]int{"p1": 0, "p2": 0},
		Deltas:    map[string]int{"p1": 5, "p2": 5},
	}}

	summary, err := Finalize(s, nil)
	require.NoError(t, err)
	assert.True(t, statsFor(t, summary, "p1").IsWinner)
	assert.True(t, statsFor(t, summary, "p2").IsWinner)
}

func TestFinalizeRejectsUnfinishedGame(t *testing.T) {
	s := completedGame()
	s.Phase = game.PhasePlaying
	_, err := Finalize(s, nil)
	require.Error(t, err)
}

func TestLifetimeApplyGame(t *testing.T) {
	var l Lifetime

	l.ApplyGame(PlayerGameStats{FinalScore: 12, TotalTricks: 5, Misplays: 1, IsWinner: true})
	assert.Equal(t, 1, l.GamesPlayed)
	assert.Equal(t, 1, l.GamesWon)
	assert.Equal(t, 12, l.MaxScore)
	assert.Equal(t, 12, l.MinScore)
	assert.Equal(t, 1, l.CurrentWinStreak)

	l.ApplyGame(PlayerGameStats{FinalScore: 20, TotalTricks: 7, IsWinner: true})
	assert.Equal(t, 2, l.CurrentWinStreak)
	assert.Equal(t, 2, l.MostConsecutiveWins)
	assert.Equal(t, 20, l.MaxScore)
	assert.Equal(t, 12, l.MinScore)

	l.ApplyGame(PlayerGameStats{FinalScore: -30, IsWinner: false})
	assert.Equal(t, 0, l.CurrentWinStreak, "loss resets the win streak")
	assert.Equal(t, 1, l.CurrentLossStreak)
	assert.Equal(t, 2, l.MostConsecutiveWins, "best streak survives the reset")
	assert.Equal(t, -30, l.MinScore)

	assert.Equal(t, 3, l.GamesPlayed)
	assert.Equal(t, 2, l.GamesWon)
	assert.Equal(t, 12, l.TotalTricks)
	assert.Equal(t, 1, l.TotalMisplays)
}
