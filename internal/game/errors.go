package game

import "fmt"

// Error codes rejected actions carry back over the wire. The codes are part
// of the protocol; clients and stats both key off them.
const (
	ErrCodeInvalidBid       = "INVALID_BID"
	ErrCodeHookViolation    = "HOOK_VIOLATION"
	ErrCodeRoundNotReady    = "ROUND_NOT_READY"
	ErrCodeNotPlayersTurn   = "NOT_PLAYERS_TURN"
	ErrCodeCardNotInHand    = "CARD_NOT_IN_HAND"
	ErrCodeMustFollowSuit   = "MUST_FOLLOW_SUIT"
	ErrCodeCannotLeadTrump  = "CANNOT_LEAD_TRUMP"
	ErrCodeTrickIncomplete  = "TRICK_INCOMPLETE"
	ErrCodeRoundNotComplete = "ROUND_NOT_COMPLETE"
	ErrCodeInvalidPlay      = "INVALID_PLAY"
)

// EngineError is a rejected action. Engine operations that return an
// EngineError leave the input state untouched.
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func engineErr(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}
