// Package bot drives non-human seats: a deterministic baseline heuristic and
// an optional remote HTTP strategy that degrades to the baseline on any
// failure.
package bot

import (
	"context"

	"github.com/lox/eldorado/internal/deck"
	"github.com/lox/eldorado/internal/game"
	"github.com/lox/eldorado/internal/randutil"
)

// Context is the read-only snapshot a strategy decides from. RNG is seeded
// from the round seed so decisions replay deterministically.
type Context struct {
	PlayerID       string               `json:"playerId"`
	RoundIndex     int                  `json:"roundIndex"`
	RoundCount     int                  `json:"roundCount"`
	CardsPerPlayer int                  `json:"cardsPerPlayer"`
	TrumpSuit      deck.Suit            `json:"trumpSuit,omitempty"`
	TrumpCard      *deck.Card           `json:"trumpCard,omitempty"`
	TrumpBroken    bool                 `json:"trumpBroken"`
	LedSuit        deck.Suit            `json:"ledSuit,omitempty"`
	TrickPlays     []game.TrickPlay     `json:"trickPlays,omitempty"`
	Bids           map[string]*int      `json:"bids,omitempty"`
	Scores         map[string]int       `json:"scores,omitempty"`
	ForbiddenBid   *int                 `json:"forbiddenBid,omitempty"`
	RNG            *randutil.SplitMix64 `json:"-"`
}

// Strategy decides bids and plays for a bot seat.
type Strategy interface {
	Bid(ctx context.Context, hand []deck.Card, bc *Context) (int, error)
	PlayCard(ctx context.Context, hand []deck.Card, bc *Context) (deck.Card, error)
}

// SnapshotContext builds a strategy context from authoritative state. The
// dealer's forbidden bid is precomputed so strategies never trip the hook
// rule.
func SnapshotContext(s *game.GameState, playerID string) *Context {
	bc := &Context{
		PlayerID:   playerID,
		RoundCount: s.Config.RoundCount,
		Scores:     make(map[string]int, len(s.CumulativeScores)),
		RNG:        game.RoundRNG(s, playerID),
	}
	for id, v := range s.CumulativeScores {
		bc.Scores[id] = v
	}

	round := s.RoundState
	if round == nil {
		return bc
	}
	bc.RoundIndex = round.RoundIndex
	bc.CardsPerPlayer = round.CardsPerPlayer
	bc.TrumpSuit = round.TrumpSuit
	bc.TrumpBroken = round.TrumpBroken
	if round.TrumpCard != nil {
		c := *round.TrumpCard
		bc.TrumpCard = &c
	}
	bc.Bids = make(map[string]*int, len(round.Bids))
	for id, b := range round.Bids {
		if b != nil {
			v := *b
			bc.Bids[id] = &v
		} else {
			bc.Bids[id] = nil
		}
	}
	if trick := round.TrickInProgress; trick != nil {
		bc.LedSuit = trick.LedSuit
		bc.TrickPlays = append([]game.TrickPlay(nil), trick.Plays...)
	}

	if playerID == round.DealerPlayerID {
		sum, othersSet := 0, true
		for id, b := range round.Bids {
			if id == playerID {
				continue
			}
			if b == nil {
				othersSet = false
				break
			}
			sum += *b
		}
		if othersSet {
			if forbidden := round.CardsPerPlayer - sum; forbidden >= 0 && forbidden <= round.CardsPerPlayer {
				bc.ForbiddenBid = &forbidden
			}
		}
	}
	return bc
}

// clampBid forces a bid into range and away from the dealer's forbidden
// value.
func clampBid(bid int, bc *Context) int {
	if bid < 0 {
		bid = 0
	}
	if bid > bc.CardsPerPlayer {
		bid = bc.CardsPerPlayer
	}
	if bc.ForbiddenBid != nil && bid == *bc.ForbiddenBid {
		if bid+1 <= bc.CardsPerPlayer {
			bid++
		} else {
			bid--
		}
	}
	return bid
}
