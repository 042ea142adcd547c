package game

// CardsForRound returns the published cards-per-player schedule: descending
// from roundCount down to 1, so the default ten-round game deals
// 10,9,8,...,1. Games longer than roundCount rounds never occur; a schedule
// value below one is pinned to one so a malformed config still deals.
// Deck count is derived from this value (extra 52-card decks are merged when
// cardsPerPlayer*N+1 exceeds 52).
func CardsForRound(roundCount, roundIndex int) int {
	cards := roundCount - roundIndex
	if cards < 1 {
		cards = 1
	}
	return cards
}
