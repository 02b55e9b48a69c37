// Package ws carries the session protocol over a websocket: one
// connection per session, flat JSON messages both ways.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/session"
	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection bound to a session. It implements
// session.Socket.
type Client struct {
	conn      *websocket.Conn
	registry  *session.Registry
	sessionID string
	logger    *logger.Logger

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

var _ session.Socket = (*Client)(nil)

// NewClient wraps an upgraded connection. Call Run to start the pumps.
func NewClient(conn *websocket.Conn, registry *session.Registry, sessionID string, log *logger.Logger) *Client {
	return &Client{
		conn:      conn,
		registry:  registry,
		sessionID: sessionID,
		logger: log.WithFields(
			zap.String("component", "ws"),
			zap.String("session_id", sessionID)),
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Send marshals and enqueues a payload. Non-blocking: a client that
// cannot keep up has messages dropped rather than stalling the run.
func (c *Client) Send(payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to marshal outbound message", zap.Error(err))
		return false
	}
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("dropping outbound message, send buffer full")
		return false
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Run binds the client to its session and blocks pumping messages
// until the connection drops or the session closes it.
func (c *Client) Run() {
	c.registry.BindSocket(c.sessionID, c)
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
		// A disconnect of the live socket ends the session; a stale
		// close after a rebind is a no-op.
		c.registry.CloseSocket(c.sessionID, c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client message. Malformed or unknown
// messages are logged and dropped, never fatal to the connection.
func (c *Client) handleMessage(raw []byte) {
	var msg wire.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("invalid client message", zap.Error(err))
		return
	}

	switch msg.Type {
	case wire.TypeSettings:
		if msg.Settings == nil {
			c.logger.Warn("settings message without settings payload")
			return
		}
		if err := c.registry.SetSettings(c.sessionID, *msg.Settings); err != nil {
			c.logger.Warn("failed to apply settings", zap.Error(err))
		}

	case wire.TypeInterrupt:
		if msg.Message == "" {
			return
		}
		if err := c.registry.EnqueueInterrupt(c.sessionID, msg.Message); err != nil {
			c.logger.Warn("failed to queue interrupt", zap.Error(err))
			return
		}
		// Acknowledges queueing only, not that the agent saw it.
		c.Send(wire.NewInterruptAck("interrupt queued"))

	case wire.TypeStop:
		c.logger.Info("client requested stop")
		c.registry.Teardown(c.sessionID)

	case wire.TypePermissionResponse:
		result := wire.PermissionResult{Behavior: session.BehaviorDeny, Message: "no result supplied"}
		if msg.Result != nil {
			result = *msg.Result
		}
		if err := c.registry.ResolvePermission(c.sessionID, msg.RequestID, result); err != nil {
			c.logger.Warn("failed to resolve permission", zap.Error(err))
		}

	case wire.TypePing:
		c.Send(wire.NewPong())

	default:
		c.logger.Warn("unknown client message type", zap.String("type", msg.Type))
	}
}
