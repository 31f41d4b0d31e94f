package ws

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/bus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Inbound is a client-to-server frame: room subscription changes, typing
// heartbeats and explicit status changes arrive over the socket.
type Inbound struct {
	Action         string `json:"action"` // "join", "leave", "typing", "status"
	Room           string `json:"room,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
	Status         string `json:"status,omitempty"`
}

// Client wraps one websocket connection and implements bus.Conn. Outbound
// frames go through a buffered channel drained by the write pump; a full
// buffer drops the frame rather than blocking the fan-out path.
type Client struct {
	conn   *websocket.Conn
	send   chan bus.Frame
	closed atomic.Bool
	logger zerolog.Logger
}

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan bus.Frame, sendBuffer),
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// Send queues a frame for delivery. Best-effort: returns false when the
// connection is closing or its buffer is full.
func (c *Client) Send(frame bus.Frame) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the client closing and closes the underlying connection,
// which unblocks the read pump.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}

// Run drives both pumps. onInbound is invoked for each parsed client frame;
// Run returns when the connection is gone, after which the caller
// deregisters the connection.
func (c *Client) Run(onInbound func(Inbound)) {
	go c.writePump()
	c.readPump(onInbound)
}

func (c *Client) readPump(onInbound func(Inbound)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		if in.Action != "" {
			onInbound(in)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
