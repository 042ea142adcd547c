package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessageType is returned for frames whose type field names no
// known message.
var ErrUnknownMessageType = errors.New("unknown message type")

// Marshal serializes a frame, filling in the type discriminant so callers
// never have to set it by hand.
func Marshal(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *PlayCard:
		msg.Type = TypePlayCard
	case *Bid:
		msg.Type = TypeBid
	case *RequestState:
		msg.Type = TypeRequestState
	case *UpdateProfile:
		msg.Type = TypeUpdateProfile
	case *Ping:
		msg.Type = TypePing
	case *Welcome:
		msg.Type = TypeWelcome
	case *StateFull:
		msg.Type = TypeStateFull
	case *GameEvent:
		msg.Type = TypeGameEvent
	case *Pong:
		msg.Type = TypePong
	case *TokenRefresh:
		msg.Type = TypeTokenRefresh
	case *Error:
		msg.Type = TypeError
	default:
		return nil, ErrUnknownMessageType
	}
	return json.Marshal(v)
}

// DecodeClientFrame parses an inbound frame into its concrete client message
// type. Server frame types arriving from a client are rejected the same way
// as garbage.
func DecodeClientFrame(data []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	var target any
	switch head.Type {
	case TypePlayCard:
		target = &PlayCard{}
	case TypeBid:
		target = &Bid{}
	case TypeRequestState:
		target = &RequestState{}
	case TypeUpdateProfile:
		target = &UpdateProfile{}
	case TypePing:
		target = &Ping{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, head.Type)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
	}
	return target, nil
}
