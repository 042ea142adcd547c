package bot

import (
	"context"
	"fmt"

	"github.com/lox/eldorado/internal/deck"
)

// Baseline is the built-in heuristic. Deterministic given the context RNG.
type Baseline struct{}

// NewBaseline returns the heuristic strategy.
func NewBaseline() *Baseline { return &Baseline{} }

// Bid counts strong cards (trumps, aces, supported kings), never bids a
// sweep, and jitters the estimate by at most one in either direction.
func (b *Baseline) Bid(_ context.Context, hand []deck.Card, bc *Context) (int, error) {
	suitLength := make(map[deck.Suit]int)
	for _, c := range hand {
		suitLength[c.Suit]++
	}

	strong := 0
	for _, c := range hand {
		switch {
		case bc.TrumpSuit != "" && c.Suit == bc.TrumpSuit:
			strong++
		case c.Rank == "A":
			strong++
		case c.Rank == "K" && suitLength[c.Suit] >= 2:
			strong++
		}
	}

	bid := strong
	if bc.RNG != nil {
		bid += bc.RNG.IntN(3) - 1
	}
	// Cap after the jitter so it can never bump the bid up to a sweep.
	if limit := bc.CardsPerPlayer - 1; bid > limit {
		bid = limit
	}
	return clampBid(bid, bc), nil
}

// PlayCard follows the led suit with the cheapest winning card, sloughs the
// lowest non-trump when void, and leads a low non-trump non-ace when it can.
func (b *Baseline) PlayCard(_ context.Context, hand []deck.Card, bc *Context) (deck.Card, error) {
	legal := legalPlays(hand, bc)
	if len(legal) == 0 {
		return deck.Card{}, fmt.Errorf("no legal plays from hand of %d", len(hand))
	}

	if bc.LedSuit != "" {
		if following := bySuit(legal, bc.LedSuit); len(following) > 0 {
			if winner := lowestWinning(following, bc); winner != nil {
				return *winner, nil
			}
			return lowest(following), nil
		}
		if offSuit := notSuit(legal, bc.TrumpSuit); len(offSuit) > 0 {
			return lowest(offSuit), nil
		}
		return lowest(legal), nil
	}

	// Leading: prefer a quiet non-trump, non-ace lead.
	lead := legal
	if preferred := notSuit(legal, bc.TrumpSuit); len(preferred) > 0 {
		lead = preferred
	}
	if quiet := notRank(lead, "A"); len(quiet) > 0 {
		lead = quiet
	}
	return lowest(lead), nil
}

// legalPlays mirrors the engine's follow-suit and trump-lead rules so the
// baseline never proposes a rejected card.
func legalPlays(hand []deck.Card, bc *Context) []deck.Card {
	if bc.LedSuit != "" {
		if following := bySuit(hand, bc.LedSuit); len(following) > 0 {
			return following
		}
		return hand
	}
	if bc.TrumpSuit != "" && !bc.TrumpBroken {
		if offTrump := notSuit(hand, bc.TrumpSuit); len(offTrump) > 0 {
			return offTrump
		}
	}
	return hand
}

// lowestWinning returns the cheapest card among candidates that would beat
// every play so far, nil when none wins.
func lowestWinning(candidates []deck.Card, bc *Context) *deck.Card {
	var best *deck.Card
	for i := range candidates {
		c := candidates[i]
		if !beatsAll(c, bc) {
			continue
		}
		if best == nil || deck.CompareRank(c.Rank, best.Rank) < 0 {
			best = &candidates[i]
		}
	}
	return best
}

func beatsAll(c deck.Card, bc *Context) bool {
	for _, play := range bc.TrickPlays {
		if !cardBeats(c, play.Card, bc.LedSuit, bc.TrumpSuit) {
			return false
		}
	}
	return true
}

// cardBeats mirrors the trick-winner rule from the challenger's perspective;
// an exactly equal card still wins because the bot plays later.
func cardBeats(challenger, incumbent deck.Card, ledSuit, trumpSuit deck.Suit) bool {
	chTrump := trumpSuit != "" && challenger.Suit == trumpSuit
	inTrump := trumpSuit != "" && incumbent.Suit == trumpSuit
	switch {
	case chTrump && !inTrump:
		return true
	case !chTrump && inTrump:
		return false
	case chTrump && inTrump:
		return deck.CompareRank(challenger.Rank, incumbent.Rank) >= 0
	default:
		if challenger.Suit != ledSuit {
			return false
		}
		if incumbent.Suit != ledSuit {
			return true
		}
		return deck.CompareRank(challenger.Rank, incumbent.Rank) >= 0
	}
}

func bySuit(cards []deck.Card, suit deck.Suit) []deck.Card {
	var out []deck.Card
	for _, c := range cards {
		if c.Suit == suit {
			out = append(out, c)
		}
	}
	return out
}

func notSuit(cards []deck.Card, suit deck.Suit) []deck.Card {
	if suit == "" {
		return cards
	}
	var out []deck.Card
	for _, c := range cards {
		if c.Suit != suit {
			out = append(out, c)
		}
	}
	return out
}

func notRank(cards []deck.Card, rank deck.Rank) []deck.Card {
	var out []deck.Card
	for _, c := range cards {
		if c.Rank != rank {
			out = append(out, c)
		}
	}
	return out
}

func lowest(cards []deck.Card) deck.Card {
	best := cards[0]
	for _, c := range cards[1:] {
		if deck.CompareRank(c.Rank, best.Rank) < 0 {
			best = c
		}
	}
	return best
}
