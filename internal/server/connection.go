package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/eldorado/internal/auth"
	"github.com/lox/eldorado/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Keepalive pings go out every pingPeriod; the read deadline allows two
	// to go unanswered before the connection is torn down.
	pingPeriod = 15 * time.Second
	pongWait   = 2*pingPeriod + time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound frame buffer per connection.
	sendBufferSize = 256
)

// Connection wraps a websocket for one authenticated client attached to a
// room. Inbound frames become room commands; outbound frames are queued and
// written by a dedicated pump.
type Connection struct {
	conn     *websocket.Conn
	room     *Room
	identity auth.Identity
	token    string
	logger   zerolog.Logger

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection builds a connection for an upgraded websocket. Start must be
// called to begin the pumps.
func NewConnection(conn *websocket.Conn, room *Room, identity auth.Identity, token string, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:     conn,
		room:     room,
		identity: identity,
		token:    token,
		logger: logger.With().
			Str("game_id", identity.GameID).
			Str("player_id", identity.PlayerID).
			Logger(),
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// PlayerID returns the authenticated player this connection speaks for.
func (c *Connection) PlayerID() string { return c.identity.PlayerID }

// Start attaches the connection to its room and begins the read and write
// pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
	c.room.post(roomCommand{kind: cmdAttach, playerID: c.identity.PlayerID, conn: c})
}

// Send queues a frame for delivery. A client that cannot drain its buffer is
// disconnected rather than allowed to stall the room.
func (c *Connection) Send(frame any) {
	data, err := protocol.Marshal(frame)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal frame")
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logger.Warn().Msg("send buffer full, dropping connection")
		c.Close()
	}
}

// SendError queues a protocol error frame.
func (c *Connection) SendError(code, message string) {
	c.Send(protocol.NewError(code, message))
}

// Close tears the connection down once. Safe to call from any goroutine.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Connection) readPump() {
	defer func() {
		c.room.post(roomCommand{kind: cmdDetach, playerID: c.identity.PlayerID, conn: c})
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Connection) handleFrame(data []byte) {
	frame, err := protocol.DecodeClientFrame(data)
	if err != nil {
		c.SendError(ErrCodeInvalidJSON, "could not parse message")
		return
	}

	switch msg := frame.(type) {
	case *protocol.Ping:
		c.Send(&protocol.Pong{Nonce: msg.Nonce, TS: time.Now().UnixMilli()})

	case *protocol.RequestState:
		c.room.post(roomCommand{kind: cmdRequestState, playerID: c.identity.PlayerID, conn: c})

	case *protocol.UpdateProfile:
		c.room.post(roomCommand{kind: cmdUpdateProfile, playerID: c.identity.PlayerID, conn: c, profile: msg})

	case *protocol.Bid:
		if c.identity.IsSpectator {
			c.SendError(ErrCodeUnauthorized, "spectators cannot bid")
			return
		}
		c.room.post(roomCommand{kind: cmdBid, playerID: c.identity.PlayerID, conn: c, bid: msg.Value})

	case *protocol.PlayCard:
		if c.identity.IsSpectator {
			c.SendError(ErrCodeUnauthorized, "spectators cannot play")
			return
		}
		c.room.post(roomCommand{kind: cmdPlay, playerID: c.identity.PlayerID, conn: c, cardID: msg.CardID})

	default:
		c.SendError(ErrCodeInvalidInput, "unsupported message")
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
