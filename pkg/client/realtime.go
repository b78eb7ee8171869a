package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"opsline/pkg/events"

	"github.com/gorilla/websocket"
)

const heartbeatInterval = 30 * time.Second

// RealtimeClient consumes lock events over a WebSocket connection.
type RealtimeClient struct {
	conn   *websocket.Conn
	events chan events.Event

	closeOnce sync.Once
	done      chan struct{}

	writeMu sync.Mutex
}

// DialRealtime connects to the event stream. baseURL is the ws:// or wss://
// address of the lock manager.
func DialRealtime(ctx context.Context, baseURL, token string) (*RealtimeClient, error) {
	endpoint := baseURL + "/api/v1/ws?token=" + url.QueryEscape(token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &RealtimeClient{
		conn:   conn,
		events: make(chan events.Event, 32),
		done:   make(chan struct{}),
	}

	go c.readLoop()
	go c.heartbeatLoop()

	return c, nil
}

// JoinRoom subscribes this connection to a user's targeted events. The
// server only admits a client into its own room.
func (c *RealtimeClient) JoinRoom(room string) error {
	return c.writeJSON(events.Command{Action: events.ActionJoinRoom, Room: room})
}

// Events yields decoded server events. The channel closes when the
// connection drops; callers should reconnect and re-read lock status.
func (c *RealtimeClient) Events() <-chan events.Event {
	return c.events
}

func (c *RealtimeClient) readLoop() {
	defer func() {
		close(c.events)
		c.Close()
	}()

	for {
		var ev events.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *RealtimeClient) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.writeJSON(events.Command{Action: events.ActionHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (c *RealtimeClient) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *RealtimeClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
