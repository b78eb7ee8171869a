package realtime

import (
	"context"
	"encoding/json"

	"opsline/pkg/events"
	"opsline/pkg/logger"
	"opsline/pkg/metrics"
)

type targetedMessage struct {
	userID string
	data   []byte
}

// Hub owns the connection registry and all room membership. A single
// goroutine serializes every mutation, so none of the maps need locking.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	join       chan roomJoin
	broadcast  chan []byte
	targeted   chan targetedMessage

	metrics *metrics.Metrics
	log     *logger.Logger
}

type roomJoin struct {
	client *Client
	room   string
}

func NewHub(m *metrics.Metrics, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan roomJoin),
		broadcast:  make(chan []byte, 64),
		targeted:   make(chan targetedMessage, 64),
		metrics:    m,
		log:        log,
	}
}

// Run blocks until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			if h.metrics != nil {
				h.metrics.Connections.Set(float64(len(h.clients)))
			}
			h.log.Info("WebSocket client connected",
				"user_id", client.identity.UserID,
				"connections", len(h.clients),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.Info("WebSocket client disconnected",
					"user_id", client.identity.UserID,
					"connections", len(h.clients),
				)
			}

		case jr := <-h.join:
			if _, ok := h.clients[jr.client]; !ok {
				continue
			}
			if h.rooms[jr.room] == nil {
				h.rooms[jr.room] = make(map[*Client]bool)
			}
			h.rooms[jr.room][jr.client] = true
			jr.client.rooms[jr.room] = true

		case data := <-h.broadcast:
			for client := range h.clients {
				h.send(client, data)
			}

		case msg := <-h.targeted:
			for client := range h.rooms[msg.userID] {
				h.send(client, msg.data)
			}
		}
	}
}

// send never blocks the registry loop. A client whose buffer is full is
// dropped; it reconnects and reconciles from lock status reads.
func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		if h.metrics != nil {
			h.metrics.DroppedSends.Inc()
		}
		h.log.Warn("Dropping slow WebSocket client", "user_id", client.identity.UserID)
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	for room := range client.rooms {
		delete(h.rooms[room], client)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.send)
	if h.metrics != nil {
		h.metrics.Connections.Set(float64(len(h.clients)))
	}
}

// BroadcastToAll queues an event for every connected client.
func (h *Hub) BroadcastToAll(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode broadcast event", "event", event.Type, "error", err)
		return
	}
	h.broadcast <- data
}

// BroadcastToUser queues an event for every connection in the user's room.
func (h *Hub) BroadcastToUser(userID string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode targeted event", "event", event.Type, "user_id", userID, "error", err)
		return
	}
	h.targeted <- targetedMessage{userID: userID, data: data}
	if h.metrics != nil {
		h.metrics.Broadcasts.WithLabelValues(event.Type).Inc()
	}
}
