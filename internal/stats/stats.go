// Package stats derives per-game player statistics from a completed game and
// folds them into lifetime aggregates.
package stats

import (
	"fmt"

	"github.com/lox/eldorado/internal/game"
)

// PlayerGameStats is one player's line in a finalized game.
type PlayerGameStats struct {
	PlayerID          string `json:"playerId"`
	UserID            string `json:"userId,omitempty"`
	FinalScore        int    `json:"finalScore"`
	TotalTricks       int    `json:"totalTricks"`
	HighestBid        int    `json:"highestBid"`
	LongestWinStreak  int    `json:"longestWinStreak"`
	LongestLossStreak int    `json:"longestLossStreak"`
	Misplays          int    `json:"misplays"`
	IsWinner          bool   `json:"isWinner"`
}

// GameSummary is the finalized record of a completed game.
type GameSummary struct {
	GameID     string            `json:"gameId"`
	RoundCount int               `json:"roundCount"`
	Players    []PlayerGameStats `json:"players"`
}

// Finalize computes the game summary from the final state and its event log.
// Streaks count consecutive rounds with positive score deltas; misplays count
// INVALID_ACTION events attributed to the player.
func Finalize(s *game.GameState, log []game.Event) (*GameSummary, error) {
	if s.Phase != game.PhaseCompleted {
		return nil, fmt.Errorf("game %s is not completed (phase %s)", s.GameID, s.Phase)
	}

	misplays := make(map[string]int)
	for _, ev := range log {
		if ev.Type != game.EventInvalidAction {
			continue
		}
		if p, ok := game.PayloadAs[game.InvalidActionPayload](ev); ok {
			misplays[p.PlayerID]++
		}
	}

	summary := &GameSummary{GameID: s.GameID, RoundCount: s.Config.RoundCount}

	maxScore := 0
	for i, id := range s.ActivePlayers() {
		if score := s.CumulativeScores[id]; i == 0 || score > maxScore {
			maxScore = score
		}
	}

	for _, id := range s.ActivePlayers() {
		line := PlayerGameStats{
			PlayerID:   id,
			FinalScore: s.CumulativeScores[id],
			Misplays:   misplays[id],
			IsWinner:   s.CumulativeScores[id] == maxScore,
		}
		if p := s.FindPlayer(id); p != nil {
			line.UserID = p.Profile.UserID
		}

		winStreak, lossStreak := 0, 0
		for _, round := range s.RoundSummaries {
			line.TotalTricks += round.TricksWon[id]
			if bid := round.Bids[id]; bid > line.HighestBid {
				line.HighestBid = bid
			}
			if round.Deltas[id] > 0 {
				winStreak++
				lossStreak = 0
			} else {
				lossStreak++
				winStreak = 0
			}
			if winStreak > line.LongestWinStreak {
				line.LongestWinStreak = winStreak
			}
			if lossStreak > line.LongestLossStreak {
				line.LongestLossStreak = lossStreak
			}
		}
		summary.Players = append(summary.Players, line)
	}
	return summary, nil
}

// Lifetime is a player's all-time aggregate, keyed by userId in storage.
// LastPlayedAt is epoch milliseconds, stamped by the store on update.
type Lifetime struct {
	GamesPlayed           int   `json:"gamesPlayed"`
	GamesWon              int   `json:"gamesWon"`
	MaxScore              int   `json:"maxScore"`
	MinScore              int   `json:"minScore"`
	TotalTricks           int   `json:"totalTricks"`
	TotalMisplays         int   `json:"totalMisplays"`
	CurrentWinStreak      int   `json:"currentWinStreak"`
	CurrentLossStreak     int   `json:"currentLossStreak"`
	MostConsecutiveWins   int   `json:"mostConsecutiveWins"`
	MostConsecutiveLosses int   `json:"mostConsecutiveLosses"`
	LastPlayedAt          int64 `json:"lastPlayedAt,omitempty"`
}

// ApplyGame folds one finalized game into the lifetime aggregate.
func (l *Lifetime) ApplyGame(line PlayerGameStats) {
	if l.GamesPlayed == 0 {
		l.MaxScore = line.FinalScore
		l.MinScore = line.FinalScore
	} else {
		if line.FinalScore > l.MaxScore {
			l.MaxScore = line.FinalScore
		}
		if line.FinalScore < l.MinScore {
			l.MinScore = line.FinalScore
		}
	}
	l.GamesPlayed++
	l.TotalTricks += line.TotalTricks
	l.TotalMisplays += line.Misplays

	if line.IsWinner {
		l.GamesWon++
		l.CurrentWinStreak++
		l.CurrentLossStreak = 0
		if l.CurrentWinStreak > l.MostConsecutiveWins {
			l.MostConsecutiveWins = l.CurrentWinStreak
		}
	} else {
		l.CurrentLossStreak++
		l.CurrentWinStreak = 0
		if l.CurrentLossStreak > l.MostConsecutiveLosses {
			l.MostConsecutiveLosses = l.CurrentLossStreak
		}
	}
}
