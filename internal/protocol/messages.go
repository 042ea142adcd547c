// Package protocol defines the JSON wire frames exchanged over a game
// connection. Every frame carries a "type" discriminant; payload fields sit
// flat beside it.
package protocol

import (
	"github.com/lox/eldorado/internal/game"
)

// MessageType identifies the type of frame
type MessageType string

const (
	// Client -> Server
	TypePlayCard      = "PLAY_CARD"
	TypeBid           = "BID"
	TypeRequestState  = "REQUEST_STATE"
	TypeUpdateProfile = "UPDATE_PROFILE"
	TypePing          = "PING"

	// Server -> Client
	TypeWelcome      = "WELCOME"
	TypeStateFull    = "STATE_FULL"
	TypeGameEvent    = "GAME_EVENT"
	TypePong         = "PONG"
	TypeTokenRefresh = "TOKEN_REFRESH"
	TypeError        = "ERROR"
)

// Client -> Server frames

// PlayCard plays the named card on the sender's turn
type PlayCard struct {
	Type   string `json:"type"`
	CardID string `json:"cardId"`
}

// Bid submits the sender's bid for the current round
type Bid struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// RequestState asks for a fresh full state snapshot
type RequestState struct {
	Type string `json:"type"`
}

// UpdateProfile changes presentation fields; nil fields are left unchanged
type UpdateProfile struct {
	Type        string  `json:"type"`
	DisplayName *string `json:"displayName,omitempty"`
	AvatarSeed  *string `json:"avatarSeed,omitempty"`
	Color       *string `json:"color,omitempty"`
}

// Ping is a client keepalive; the nonce is echoed back
type Ping struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce,omitempty"`
}

// Server -> Client frames

// Welcome is the first frame after a successful connect
type Welcome struct {
	Type        string `json:"type"`
	PlayerID    string `json:"playerId"`
	GameID      string `json:"gameId"`
	SeatIndex   *int   `json:"seatIndex"`
	IsSpectator bool   `json:"isSpectator"`
}

// StateFull carries a complete redacted snapshot for the receiver
type StateFull struct {
	Type  string              `json:"type"`
	State game.ClientGameView `json:"state"`
}

// GameEvent carries one committed log event
type GameEvent struct {
	Type  string     `json:"type"`
	Event game.Event `json:"event"`
}

// Pong answers a Ping
type Pong struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce,omitempty"`
	TS    int64  `json:"ts"`
}

// TokenRefresh delivers a rotated player token
type TokenRefresh struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
	Token  string `json:"token"`
}

// Error reports a rejected frame or action to one client
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds an Error frame with the type field set.
func NewError(code, message string) *Error {
	return &Error{Type: TypeError, Code: code, Message: message}
}
