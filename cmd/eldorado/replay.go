package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lox/eldorado/internal/game"
)

// ReplayCmd folds a serialized event log back into a game state and prints
// the outcome. Useful for auditing a persisted game or debugging a log dump.
type ReplayCmd struct {
	File string `kong:"arg,help='JSON file holding an array of game events'"`
}

func (c *ReplayCmd) Run() error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}

	var events []game.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("parse event log: %w", err)
	}

	state, err := game.Replay(events)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	out := struct {
		GameID         string              `json:"gameId"`
		Phase          game.Phase          `json:"phase"`
		Events         int                 `json:"events"`
		RoundsPlayed   int                 `json:"roundsPlayed"`
		Scores         map[string]int      `json:"scores"`
		RoundSummaries []game.RoundSummary `json:"roundSummaries"`
	}{
		GameID:         state.GameID,
		Phase:          state.Phase,
		Events:         len(events),
		RoundsPlayed:   len(state.RoundSummaries),
		Scores:         state.CumulativeScores,
		RoundSummaries: state.RoundSummaries,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
