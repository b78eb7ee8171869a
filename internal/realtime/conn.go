package realtime

import (
	"encoding/json"
	"time"

	"opsline/pkg/auth"
	"opsline/pkg/events"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection. The read pump handles inbound commands
// and liveness; the write pump drains the send buffer filled by the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity auth.Identity

	// rooms is touched only by the hub goroutine.
	rooms map[string]bool

	writeWait      time.Duration
	pongWait       time.Duration
	maxMessageSize int64
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("WebSocket read failed", "user_id", c.identity.UserID, "error", err)
			}
			return
		}

		var cmd events.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.hub.log.Warn("Ignoring malformed WebSocket command", "user_id", c.identity.UserID)
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd events.Command) {
	switch cmd.Action {
	case events.ActionJoinRoom:
		// Clients may only join their own room.
		if cmd.Room != c.identity.UserID {
			c.hub.log.Warn("Rejected join for foreign room",
				"user_id", c.identity.UserID,
				"room", cmd.Room,
			)
			return
		}
		c.hub.join <- roomJoin{client: c, room: cmd.Room}
	case events.ActionHeartbeat:
		// Application-level heartbeat; the read deadline is refreshed by
		// protocol pongs, so nothing to do here.
	default:
		c.hub.log.Warn("Unknown WebSocket command", "action", cmd.Action, "user_id", c.identity.UserID)
	}
}

func (c *Client) writePump() {
	// Ping often enough that a healthy peer always answers inside pongWait.
	pingPeriod := c.pongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
