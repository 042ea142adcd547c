package game

import "github.com/lox/eldorado/internal/deck"

// ClientGameView is the redacted projection sent in STATE_FULL frames. Only
// the receiving player's hand is populated; everyone else contributes a hand
// count. Completed tricks and the trick in progress are public.
type ClientGameView struct {
	GameID           string          `json:"gameId"`
	Phase            Phase           `json:"phase"`
	RoundCount       int             `json:"roundCount"`
	Players          []PlayerView    `json:"players"`
	CumulativeScores map[string]int  `json:"cumulativeScores"`
	Round            *RoundView      `json:"round"`
	RoundSummaries   []RoundSummary  `json:"roundSummaries"`
	You              *YouView        `json:"you"`
	ExpectedPlayerID string          `json:"expectedPlayerId,omitempty"`
}

// PlayerView is the public slice of a seat.
type PlayerView struct {
	PlayerID  string        `json:"playerId"`
	SeatIndex int           `json:"seatIndex"`
	Profile   PlayerProfile `json:"profile"`
	Status    PlayerStatus  `json:"status"`
	IsBot     bool          `json:"isBot"`
	Spectator bool          `json:"spectator"`
	HandCount int           `json:"handCount"`
	TricksWon int           `json:"tricksWon"`
	Bid       *int          `json:"bid"`
}

// RoundView is the public slice of the active round.
type RoundView struct {
	RoundIndex       int             `json:"roundIndex"`
	CardsPerPlayer   int             `json:"cardsPerPlayer"`
	TrumpCard        *deck.Card      `json:"trumpCard"`
	TrumpSuit        deck.Suit       `json:"trumpSuit,omitempty"`
	TrumpBroken      bool            `json:"trumpBroken"`
	Bids             map[string]*int `json:"bids"`
	BiddingComplete  bool            `json:"biddingComplete"`
	TrickInProgress  *TrickState     `json:"trickInProgress"`
	CompletedTricks  []TrickState    `json:"completedTricks"`
	DealerPlayerID   string          `json:"dealerPlayerId"`
	StartingPlayerID string          `json:"startingPlayerId"`
}

// YouView is the private slice for the receiving player.
type YouView struct {
	PlayerID string      `json:"playerId"`
	Hand     []deck.Card `json:"hand"`
}

// ViewFor projects the state for one viewer. An empty viewerID (or a
// spectator's) yields a view with no private slice.
func ViewFor(s *GameState, viewerID string) ClientGameView {
	view := ClientGameView{
		GameID:           s.GameID,
		Phase:            s.Phase,
		RoundCount:       s.Config.RoundCount,
		CumulativeScores: copyScores(s.CumulativeScores),
		RoundSummaries:   append([]RoundSummary(nil), s.RoundSummaries...),
		ExpectedPlayerID: ExpectedPlayer(s),
	}

	view.Players = make([]PlayerView, 0, len(s.Players))
	for _, p := range s.Players {
		pv := PlayerView{
			PlayerID:  p.PlayerID,
			SeatIndex: p.SeatIndex,
			Profile:   p.Profile,
			Status:    p.Status,
			IsBot:     p.IsBot,
			Spectator: p.Spectator,
		}
		if ps := s.PlayerStates[p.PlayerID]; ps != nil {
			pv.HandCount = len(ps.Hand)
			pv.TricksWon = ps.TricksWon
			if ps.Bid != nil {
				b := *ps.Bid
				pv.Bid = &b
			}
		}
		view.Players = append(view.Players, pv)
	}

	if s.RoundState != nil {
		r := s.RoundState.clone()
		view.Round = &RoundView{
			RoundIndex:       r.RoundIndex,
			CardsPerPlayer:   r.CardsPerPlayer,
			TrumpCard:        r.TrumpCard,
			TrumpSuit:        r.TrumpSuit,
			TrumpBroken:      r.TrumpBroken,
			Bids:             r.Bids,
			BiddingComplete:  r.BiddingComplete,
			TrickInProgress:  r.TrickInProgress,
			CompletedTricks:  r.CompletedTricks,
			DealerPlayerID:   r.DealerPlayerID,
			StartingPlayerID: r.StartingPlayerID,
		}
	}

	if ps := s.PlayerStates[viewerID]; ps != nil {
		view.You = &YouView{
			PlayerID: viewerID,
			Hand:     append([]deck.Card(nil), ps.Hand...),
		}
	}
	return view
}

func copyScores(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
