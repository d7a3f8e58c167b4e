// Package server manages individual WebSocket participants, handling
// read/write pumps, rate limiting, and event dispatch for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client represents one live participant connection. Its id is opaque and
// unique per connection; the display name is set by the username event and
// defaults to empty. Rooms reference clients but never own them.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	id             string
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	log            *slog.Logger

	mu       sync.Mutex
	closed   bool
	username string
}

// NewClient creates a Client for the given WebSocket connection. The send
// channel is buffered so relays to this client never block the sender.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		id:             uuid.NewString(),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newMessageLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            hub.log,
	}
}

// ID returns the participant's connection-scoped identifier.
func (c *Client) ID() string {
	return c.id
}

// Username returns the participant's current display name.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) setUsername(name string) {
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// trySend queues a frame for delivery without blocking. It reports false if
// the client is closed or its buffer is full; callers treat that as a
// dropped fire-and-forget notification.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// markClosed flips the closed flag and reports whether this call did the
// flip. The send channel may only be closed by whoever got true back; after
// that no trySend can reach it.
func (c *Client) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.log.Warn("setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.log.Warn("setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("message exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("client disconnected", "addr", c.addr, "error", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("client connection closed", "addr", c.addr, "error", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn("unexpected websocket error", "addr", c.addr, "error", err)
		return true
	}

	c.log.Warn("websocket read error", "addr", c.addr, "error", err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Warn("rate limit exceeded, discarding message",
			"addr", c.addr, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes one inbound frame and dispatches it to the matching
// registry operation. It returns true if the frame was handled.
func (c *Client) processMessage(rawMessage []byte) bool {
	var env Envelope
	if err := json.Unmarshal(rawMessage, &env); err != nil {
		c.log.Warn("invalid frame", "addr", c.addr, "error", err)
		return false
	}

	switch env.Event {
	case EventUsername:
		var p UsernamePayload
		if !c.decodeData(env, &p) {
			return false
		}
		c.setUsername(p.Username)

	case EventCreateRoom:
		roomID := c.hub.registry.CreateRoom(c)
		c.reply(EventRoomCreated, RoomCreatedPayload{RoomID: roomID})

	case EventJoinRoom:
		var p JoinRoomPayload
		if !c.decodeData(env, &p) {
			return false
		}
		snap, err := c.hub.registry.JoinRoom(p.RoomID, c)
		if err != nil {
			c.reply(EventJoinFailed, JoinFailedPayload{Error: true, Message: err.Error()})
			return true
		}
		c.reply(EventRoomJoined, snap)

	case EventMove:
		var p MovePayload
		if !c.decodeData(env, &p) {
			return false
		}
		c.hub.registry.RelayMove(p.Room, p.Move, c)

	// the browser client emits inbound chat under the same name it listens
	// on, so both spellings are accepted
	case EventChat, EventChatMessage:
		var p ChatPayload
		if !c.decodeData(env, &p) {
			return false
		}
		c.hub.registry.RelayChat(p.RoomID, p.Message, c)

	case EventCloseRoom:
		var p CloseRoomPayload
		if !c.decodeData(env, &p) {
			return false
		}
		c.hub.registry.CloseRoom(p.RoomID)

	default:
		c.log.Debug("unknown event", "event", env.Event, "addr", c.addr)
		return false
	}
	return true
}

func (c *Client) decodeData(env Envelope, target any) bool {
	if err := json.Unmarshal(env.Data, target); err != nil {
		c.log.Warn("invalid event data", "event", env.Event, "addr", c.addr, "error", err)
		return false
	}
	return true
}

// reply sends a response event to this client only.
func (c *Client) reply(event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		c.log.Error("encoding reply", "event", event, "error", err)
		return
	}
	c.trySend(payload)
}

func (c *Client) readPump() {
	defer func() {
		// During hub shutdown nobody services unregister anymore; the hub is
		// already tearing every client down itself.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn("closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("closing connection in writePump", "error", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.Warn("setting write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("writing close message", "addr", c.addr, "error", err)
		}
	}
	return false
}

// writeTextMessage writes a frame, draining any frames already queued for
// this client into the same write.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warn("creating writer", "addr", c.addr, "error", err)
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.log.Warn("writing message", "addr", c.addr, "error", err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warn("writing frame separator", "addr", c.addr, "error", err)
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.log.Warn("writing queued message", "addr", c.addr, "error", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warn("closing writer", "addr", c.addr, "error", err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.Warn("setting write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("writing ping message", "addr", c.addr, "error", err)
		return false
	}
	return true
}
