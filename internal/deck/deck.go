// Package deck builds and shuffles the merged card decks used by a round.
package deck

import "github.com/lox/eldorado/internal/randutil"

const deckSize = 52

// DecksNeeded returns the number of 52-card decks required to deal
// cardsPerPlayer to each of n players plus one trump reveal.
func DecksNeeded(cardsPerPlayer, n int) int {
	need := cardsPerPlayer*n + 1
	decks := need / deckSize
	if need%deckSize != 0 {
		decks++
	}
	if decks < 1 {
		decks = 1
	}
	return decks
}

// Build returns the merged, unshuffled deck for the given deck count, in
// canonical order: deck index, then suit, then rank.
func Build(decks int) []Card {
	cards := make([]Card, 0, decks*deckSize)
	for d := 0; d < decks; d++ {
		for _, suit := range Suits {
			for _, rank := range Ranks {
				cards = append(cards, NewCard(d, suit, rank))
			}
		}
	}
	return cards
}

// Shuffle performs an in-place Fisher-Yates shuffle driven by the seeded
// stream. Identical seeds yield identical orderings on every platform.
func Shuffle(cards []Card, rng *randutil.SplitMix64) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// BuildShuffled builds the merged deck for the seed and shuffles it.
func BuildShuffled(decks int, seed string) []Card {
	cards := Build(decks)
	Shuffle(cards, randutil.NewSplitMix64(seed))
	return cards
}
