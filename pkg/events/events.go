package events

import (
	"encoding/json"
	"fmt"
	"time"

	"opsline/pkg/model"
)

// Server to client event types.
const (
	EventResourceLocked   = "resource-locked"
	EventResourceUnlocked = "resource-unlocked"
	EventDashboardMetrics = "dashboard-metrics"
)

// Client to server command actions.
const (
	ActionJoinRoom  = "join-room"
	ActionHeartbeat = "heartbeat"
)

// Event is the envelope pushed to WebSocket clients. Payload stays raw JSON
// so clients can route on Type before decoding.
type Event struct {
	Type      string          `json:"type"`
	EmittedAt time.Time       `json:"emitted_at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func NewEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	return Event{
		Type:      eventType,
		EmittedAt: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// LockEventPayload rides on resource-locked and resource-unlocked events.
// Unlock events carry no owner fields.
type LockEventPayload struct {
	ResourceID       string     `json:"resource_id"`
	ResourceType     string     `json:"resource_type"`
	OwnerUserID      string     `json:"owner_user_id,omitempty"`
	OwnerDisplayName string     `json:"owner_display_name,omitempty"`
	AcquiredAt       *time.Time `json:"acquired_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

func LockedPayload(lock *model.Lock) LockEventPayload {
	acquired := lock.AcquiredAt
	expires := lock.ExpiresAt
	return LockEventPayload{
		ResourceID:       lock.ResourceID,
		ResourceType:     lock.ResourceType,
		OwnerUserID:      lock.OwnerUserID,
		OwnerDisplayName: lock.OwnerDisplayName,
		AcquiredAt:       &acquired,
		ExpiresAt:        &expires,
	}
}

func UnlockedPayload(resourceType, resourceID string) LockEventPayload {
	return LockEventPayload{
		ResourceID:   resourceID,
		ResourceType: resourceType,
	}
}

// DashboardMetricsPayload is pushed to a user's room when order counters
// change, so open dashboards update without polling.
type DashboardMetricsPayload struct {
	UserID         string `json:"user_id"`
	OpenOrders     int64  `json:"open_orders"`
	UpdatedByOrder string `json:"updated_by_order,omitempty"`
}

// Command is what clients send over the socket.
type Command struct {
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
}
