package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

// Producer publishes lock audit records. It is safe for concurrent use.
type Producer struct {
	writer *kafka.Writer
	source string

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic, source string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  compress.Snappy,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		Logger:       kafka.LoggerFunc(func(msg string, args ...any) {}),
	}

	return &Producer{writer: writer, source: source}, nil
}

// PublishEvent JSON-encodes payload and publishes it keyed on resourceKey.
func (p *Producer) PublishEvent(ctx context.Context, eventType, resourceKey string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return p.Publish(ctx, Message{
		Key:   resourceKey,
		Value: value,
		Headers: map[string]string{
			HeaderEventType: eventType,
		},
		Timestamp: time.Now(),
	})
}

func (p *Producer) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	headers := make([]kafka.Header, 0, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: HeaderEventID, Value: []byte(uuid.New().String())},
		kafka.Header{Key: HeaderSource, Value: []byte(p.source)},
		kafka.Header{Key: HeaderTimestamp, Value: []byte(msg.Timestamp.UTC().Format(time.RFC3339Nano))},
	)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
		Time:    msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
