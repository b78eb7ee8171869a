package kafka

import (
	"time"
)

// Header keys carried on every audit record.
const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
	HeaderSource    = "source"
	HeaderTimestamp = "timestamp"
)

// Audit event types for the lock stream.
const (
	EventLockAcquired = "lock-acquired"
	EventLockRenewed  = "lock-renewed"
	EventLockReleased = "lock-released"
	EventLockExpired  = "lock-expired"
)

// Message is an audit record bound for Kafka. Key is the resource key so all
// events for one resource land on the same partition, in order.
type Message struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}
