package game

import "fmt"

// CheckInvariants verifies the structural invariants that must hold for any
// reachable state: card conservation and uniqueness during a round, and
// score/summary consistency at all times. Returns nil when the state is
// sound.
func CheckInvariants(s *GameState) error {
	if s.RoundState != nil && (s.Phase == PhaseBidding || s.Phase == PhasePlaying) {
		if err := checkCardConservation(s); err != nil {
			return err
		}
	}
	if s.RoundState != nil {
		if err := checkCardUniqueness(s); err != nil {
			return err
		}
	}
	return checkScoreConsistency(s)
}

func checkCardConservation(s *GameState) error {
	round := s.RoundState
	if round == nil {
		return nil
	}
	n := len(s.ActivePlayers())
	total := 0
	for _, id := range s.ActivePlayers() {
		if ps := s.PlayerStates[id]; ps != nil {
			total += len(ps.Hand)
		}
	}
	total += len(round.CompletedTricks) * n
	if round.TrickInProgress != nil {
		total += len(round.TrickInProgress.Plays)
	}
	// ROUND_STARTED opens bidding one event before CARDS_DEALT populates
	// hands; an undealt round has nothing to conserve yet.
	if total == 0 {
		return nil
	}
	if want := round.CardsPerPlayer * n; total != want {
		return fmt.Errorf("card conservation broken: have %d cards in play, want %d", total, want)
	}
	return nil
}

func checkCardUniqueness(s *GameState) error {
	seen := make(map[string]string)
	note := func(cardID, where string) error {
		if prev, dup := seen[cardID]; dup {
			return fmt.Errorf("card %s appears in both %s and %s", cardID, prev, where)
		}
		seen[cardID] = where
		return nil
	}

	for id, ps := range s.PlayerStates {
		for _, c := range ps.Hand {
			if err := note(c.ID, "hand:"+id); err != nil {
				return err
			}
		}
	}
	round := s.RoundState
	for _, trick := range round.CompletedTricks {
		for _, play := range trick.Plays {
			if err := note(play.Card.ID, fmt.Sprintf("trick:%d", trick.TrickIndex)); err != nil {
				return err
			}
		}
	}
	if round.TrickInProgress != nil {
		for _, play := range round.TrickInProgress.Plays {
			if err := note(play.Card.ID, "trick:in-progress"); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkScoreConsistency(s *GameState) error {
	sums := make(map[string]int)
	for _, summary := range s.RoundSummaries {
		for id, delta := range summary.Deltas {
			sums[id] += delta
		}
	}
	for id, score := range s.CumulativeScores {
		if sums[id] != score {
			return fmt.Errorf("cumulative score for %s is %d but round deltas sum to %d", id, score, sums[id])
		}
	}
	return nil
}
