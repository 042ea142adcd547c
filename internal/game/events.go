package game

import (
	"encoding/json"
	"fmt"

	"github.com/lox/eldorado/internal/deck"
)

// EventType discriminates the event union. Payload shape is keyed by type.
type EventType string

const (
	EventGameCreated     EventType = "GAME_CREATED"
	EventPlayerJoined    EventType = "PLAYER_JOINED"
	EventRoundStarted    EventType = "ROUND_STARTED"
	EventCardsDealt      EventType = "CARDS_DEALT"
	EventTrumpRevealed   EventType = "TRUMP_REVEALED"
	EventPlayerBid       EventType = "PLAYER_BID"
	EventBiddingComplete EventType = "BIDDING_COMPLETE"
	EventTrickStarted    EventType = "TRICK_STARTED"
	EventCardPlayed      EventType = "CARD_PLAYED"
	EventTrumpBroken     EventType = "TRUMP_BROKEN"
	EventTrickCompleted  EventType = "TRICK_COMPLETED"
	EventRoundScored     EventType = "ROUND_SCORED"
	EventGameCompleted   EventType = "GAME_COMPLETED"
	EventInvalidAction   EventType = "INVALID_ACTION"
)

// Event is one entry in a game's append-only log. The engine fills Type,
// Payload and GameID; the room assigns EventIndex and Timestamp when it
// commits. Timestamp is epoch milliseconds so serialized logs are bit-stable.
type Event struct {
	Type       EventType `json:"type"`
	Payload    any       `json:"payload"`
	EventIndex int       `json:"eventIndex"`
	Timestamp  int64     `json:"timestamp"`
	GameID     string    `json:"gameId"`
}

type GameCreatedPayload struct {
	Config Config `json:"config"`
}

type PlayerJoinedPayload struct {
	Player PlayerInGame `json:"player"`
}

type RoundStartedPayload struct {
	RoundIndex       int    `json:"roundIndex"`
	CardsPerPlayer   int    `json:"cardsPerPlayer"`
	RoundSeed        string `json:"roundSeed"`
	DealerPlayerID   string `json:"dealerPlayerId"`
	StartingPlayerID string `json:"startingPlayerId"`
}

// CardsDealtPayload carries the full deal. The log is the system of record,
// so hands appear here; hand hiding is a view concern, not a log concern.
type CardsDealtPayload struct {
	Hands map[string][]deck.Card `json:"hands"`
}

type TrumpRevealedPayload struct {
	TrumpCard *deck.Card `json:"trumpCard"`
	TrumpSuit deck.Suit  `json:"trumpSuit,omitempty"`
}

type PlayerBidPayload struct {
	PlayerID string `json:"playerId"`
	Bid      int    `json:"bid"`
}

type BiddingCompletePayload struct {
	Bids map[string]int `json:"bids"`
}

type TrickStartedPayload struct {
	TrickIndex     int    `json:"trickIndex"`
	LeaderPlayerID string `json:"leaderPlayerId"`
}

type CardPlayedPayload struct {
	PlayerID string    `json:"playerId"`
	Card     deck.Card `json:"card"`
	Order    int       `json:"order"`
}

type TrumpBrokenPayload struct {
	PlayerID string `json:"playerId"`
}

type TrickCompletedPayload struct {
	TrickIndex      int    `json:"trickIndex"`
	WinningPlayerID string `json:"winningPlayerId"`
	WinningCardID   string `json:"winningCardId"`
}

type RoundScoredPayload struct {
	Summary RoundSummary `json:"summary"`
}

type GameCompletedPayload struct {
	FinalScores map[string]int `json:"finalScores"`
}

type InvalidActionPayload struct {
	PlayerID string `json:"playerId"`
	Action   string `json:"action"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

func newEvent(gameID string, typ EventType, payload any) Event {
	return Event{Type: typ, Payload: payload, GameID: gameID}
}

// NewInvalidAction records a rejected action in the log. Rooms emit these for
// player-originated misplays; the stats rollup counts them.
func NewInvalidAction(gameID, playerID, action, code, message string) Event {
	return newEvent(gameID, EventInvalidAction, InvalidActionPayload{
		PlayerID: playerID,
		Action:   action,
		Code:     code,
		Message:  message,
	})
}

// UnmarshalJSON decodes the payload into the concrete type for the event's
// discriminant, so logs read back from storage replay identically.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       EventType       `json:"type"`
		Payload    json.RawMessage `json:"payload"`
		EventIndex int             `json:"eventIndex"`
		Timestamp  int64           `json:"timestamp"`
		GameID     string          `json:"gameId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Type = raw.Type
	e.EventIndex = raw.EventIndex
	e.Timestamp = raw.Timestamp
	e.GameID = raw.GameID

	payload, err := decodePayload(raw.Type, raw.Payload)
	if err != nil {
		return err
	}
	e.Payload = payload
	return nil
}

func decodePayload(typ EventType, data json.RawMessage) (any, error) {
	var target any
	switch typ {
	case EventGameCreated:
		target = &GameCreatedPayload{}
	case EventPlayerJoined:
		target = &PlayerJoinedPayload{}
	case EventRoundStarted:
		target = &RoundStartedPayload{}
	case EventCardsDealt:
		target = &CardsDealtPayload{}
	case EventTrumpRevealed:
		target = &TrumpRevealedPayload{}
	case EventPlayerBid:
		target = &PlayerBidPayload{}
	case EventBiddingComplete:
		target = &BiddingCompletePayload{}
	case EventTrickStarted:
		target = &TrickStartedPayload{}
	case EventCardPlayed:
		target = &CardPlayedPayload{}
	case EventTrumpBroken:
		target = &TrumpBrokenPayload{}
	case EventTrickCompleted:
		target = &TrickCompletedPayload{}
	case EventRoundScored:
		target = &RoundScoredPayload{}
	case EventGameCompleted:
		target = &GameCompletedPayload{}
	case EventInvalidAction:
		target = &InvalidActionPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", typ)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, target); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
	}
	return target, nil
}

// PayloadAs returns the payload as *T regardless of whether the event was
// produced live (value or pointer) or decoded from JSON (always pointer).
func PayloadAs[T any](e Event) (*T, bool) {
	switch p := e.Payload.(type) {
	case *T:
		return p, true
	case T:
		return &p, true
	default:
		return nil, false
	}
}
