package deck

import "fmt"

// Suit is one of the four French suits, serialized lowercase on the wire.
type Suit string

const (
	Clubs    Suit = "clubs"
	Diamonds Suit = "diamonds"
	Hearts   Suit = "hearts"
	Spades   Suit = "spades"
)

// Suits lists all suits in canonical deal order.
var Suits = []Suit{Clubs, Diamonds, Hearts, Spades}

// Rank is a card rank, "2" through "10" then "J", "Q", "K", "A".
type Rank string

// Ranks lists all ranks in ascending strength order.
var Ranks = []Rank{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}

var rankValue = func() map[Rank]int {
	m := make(map[Rank]int, len(Ranks))
	for i, r := range Ranks {
		m[r] = i
	}
	return m
}()

// CompareRank returns <0, 0, >0 as a ranks below, equal to, or above b.
func CompareRank(a, b Rank) int {
	return rankValue[a] - rankValue[b]
}

// Card is a single card from a (possibly merged) deck. DeckIndex distinguishes
// duplicates when multiple 52-card decks are shuffled together and is part of
// the card's identity.
type Card struct {
	ID        string `json:"id"`
	Suit      Suit   `json:"suit"`
	Rank      Rank   `json:"rank"`
	DeckIndex int    `json:"deckIndex"`
}

// CardID builds the canonical card identifier, "d{deckIndex}:{suit}:{rank}".
func CardID(deckIndex int, suit Suit, rank Rank) string {
	return fmt.Sprintf("d%d:%s:%s", deckIndex, suit, rank)
}

// NewCard constructs a card with its canonical ID.
func NewCard(deckIndex int, suit Suit, rank Rank) Card {
	return Card{
		ID:        CardID(deckIndex, suit, rank),
		Suit:      suit,
		Rank:      rank,
		DeckIndex: deckIndex,
	}
}

func (c Card) String() string { return c.ID }
