package server

// Transport-level error codes. Engine rejections carry their own codes from
// the game package; these cover everything that fails before an action
// reaches the engine.
const (
	ErrCodeInvalidJSON    = "INVALID_JSON"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeRoomNotFound   = "ROOM_NOT_FOUND"
	ErrCodeRoomFull       = "ROOM_FULL"
	ErrCodePlayerNotFound = "PLAYER_NOT_FOUND"
	ErrCodeDBNotReady     = "DB_NOT_READY"
	ErrCodeInternal       = "INTERNAL_ERROR"
)
