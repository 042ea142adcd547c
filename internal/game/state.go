// Package game implements the El Dorado rules engine: pure state-transition
// functions that take a state and an input and return a new state plus the
// events describing what happened. The engine performs no I/O and reads no
// clocks; rooms own every observable side effect.
package game

import (
	"time"

	"github.com/lox/eldorado/internal/deck"
)

// Phase is the game-level lifecycle phase.
type Phase string

const (
	PhaseLobby     Phase = "LOBBY"
	PhaseBidding   Phase = "BIDDING"
	PhasePlaying   Phase = "PLAYING"
	PhaseScoring   Phase = "SCORING"
	PhaseCompleted Phase = "COMPLETED"
)

// PlayerStatus tracks seat occupancy. A disconnected player keeps their seat.
type PlayerStatus string

const (
	StatusActive       PlayerStatus = "active"
	StatusDisconnected PlayerStatus = "disconnected"
	StatusLeft         PlayerStatus = "left"
)

// PlayerProfile is the client-supplied presentation data for a seat.
type PlayerProfile struct {
	DisplayName string `json:"displayName"`
	AvatarSeed  string `json:"avatarSeed"`
	Color       string `json:"color"`
	UserID      string `json:"userId,omitempty"`
}

// PlayerInGame is one entry in the ordered seat list. Seat indices are stable
// for the life of the game; spectators carry SeatIndex -1.
type PlayerInGame struct {
	PlayerID  string        `json:"playerId"`
	SeatIndex int           `json:"seatIndex"`
	Profile   PlayerProfile `json:"profile"`
	Status    PlayerStatus  `json:"status"`
	IsBot     bool          `json:"isBot"`
	Spectator bool          `json:"spectator"`
}

// PlayerState is the per-player round-scoped state.
type PlayerState struct {
	PlayerID        string      `json:"playerId"`
	Hand            []deck.Card `json:"hand"`
	TricksWon       int         `json:"tricksWon"`
	Bid             *int        `json:"bid"`
	RoundScoreDelta int         `json:"roundScoreDelta"`
}

// TrickPlay is a single card played into a trick.
type TrickPlay struct {
	PlayerID string    `json:"playerId"`
	Card     deck.Card `json:"card"`
	Order    int       `json:"order"`
}

// TrickState is one trick, in progress or completed.
type TrickState struct {
	TrickIndex      int         `json:"trickIndex"`
	LeaderPlayerID  string      `json:"leaderPlayerId"`
	LedSuit         deck.Suit   `json:"ledSuit,omitempty"`
	Plays           []TrickPlay `json:"plays"`
	Completed       bool        `json:"completed"`
	WinningPlayerID string      `json:"winningPlayerId,omitempty"`
	WinningCardID   string      `json:"winningCardId,omitempty"`
}

// RoundState is the state of the active round, nil between rounds.
type RoundState struct {
	RoundIndex       int             `json:"roundIndex"`
	CardsPerPlayer   int             `json:"cardsPerPlayer"`
	RoundSeed        string          `json:"roundSeed"`
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

// RoundSummary is the scored record of a finished round.
type RoundSummary struct {
	RoundIndex     int            `json:"roundIndex"`
	CardsPerPlayer int            `json:"cardsPerPlayer"`
	TrumpSuit      deck.Suit      `json:"trumpSuit,omitempty"`
	Bids           map[string]int `json:"bids"`
	TricksWon      map[string]int `json:"tricksWon"`
	Deltas         map[string]int `json:"deltas"`
}

// Config is the immutable game configuration fixed at creation.
type Config struct {
	SessionSeed string `json:"sessionSeed"`
	RoundCount  int    `json:"roundCount"`
	MinPlayers  int    `json:"minPlayers"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// DefaultRoundCount is used when a room is created without an explicit count.
const DefaultRoundCount = 10

// GameState is the full authoritative state of one game.
type GameState struct {
	GameID           string                  `json:"gameId"`
	Config           Config                  `json:"config"`
	Phase            Phase                   `json:"phase"`
	Players          []PlayerInGame          `json:"players"`
	PlayerStates     map[string]*PlayerState `json:"playerStates"`
	CumulativeScores map[string]int          `json:"cumulativeScores"`
	RoundState       *RoundState             `json:"roundState"`
	RoundSummaries   []RoundSummary          `json:"roundSummaries"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

// ActivePlayers returns the seat-ordered player IDs that participate in
// tricks. Players slice order is seat order by construction; spectators are
// excluded, disconnected players keep their turn in the rotation.
func (s *GameState) ActivePlayers() []string {
	ids := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.Spectator {
			ids = append(ids, p.PlayerID)
		}
	}
	return ids
}

// FindPlayer returns the seat entry for the player, or nil.
func (s *GameState) FindPlayer(playerID string) *PlayerInGame {
	for i := range s.Players {
		if s.Players[i].PlayerID == playerID {
			return &s.Players[i]
		}
	}
	return nil
}

// Clone deep-copies the state. Engine operations clone before mutating so a
// prior snapshot is never visible mid-mutation to another subsystem.
func (s *GameState) Clone() *GameState {
	ns := *s

	ns.Players = append([]PlayerInGame(nil), s.Players...)

	ns.PlayerStates = make(map[string]*PlayerState, len(s.PlayerStates))
	for id, ps := range s.PlayerStates {
		cp := *ps
		cp.Hand = append([]deck.Card(nil), ps.Hand...)
		if ps.Bid != nil {
			b := *ps.Bid
			cp.Bid = &b
		}
		ns.PlayerStates[id] = &cp
	}

	ns.CumulativeScores = make(map[string]int, len(s.CumulativeScores))
	for id, v := range s.CumulativeScores {
		ns.CumulativeScores[id] = v
	}

	if s.RoundState != nil {
		ns.RoundState = s.RoundState.clone()
	}

	ns.RoundSummaries = append([]RoundSummary(nil), s.RoundSummaries...)
	return &ns
}

func (r *RoundState) clone() *RoundState {
	nr := *r
	if r.TrumpCard != nil {
		c := *r.TrumpCard
		nr.TrumpCard = &c
	}
	nr.Bids = make(map[string]*int, len(r.Bids))
	for id, b := range r.Bids {
		if b != nil {
			v := *b
			nr.Bids[id] = &v
		} else {
			nr.Bids[id] = nil
		}
	}
	if r.TrickInProgress != nil {
		t := r.TrickInProgress.clone()
		nr.TrickInProgress = &t
	}
	nr.CompletedTricks = make([]TrickState, len(r.CompletedTricks))
	for i := range r.CompletedTricks {
		nr.CompletedTricks[i] = r.CompletedTricks[i].clone()
	}
	return &nr
}

func (t TrickState) clone() TrickState {
	nt := t
	nt.Plays = append([]TrickPlay(nil), t.Plays...)
	return nt
}
