package bus

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format every message carries: a server-side
// timestamp, the routing key it was published with, and an opaque payload.
// Content-type is always JSON-compatible (map[string]interface{} or a value
// that round-trips through encoding/json); delivery mode is persistent
// unless the publisher opts out.
type Envelope struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	RoutingKey string                 `json:"routing_key"`
	Payload    map[string]interface{} `json:"payload"`
	Persistent bool                   `json:"persistent"`
	expiresAt  time.Time
	attempts   int
}

func newEnvelope(routingKey string, payload map[string]interface{}, persistent bool, ttl time.Duration) *Envelope {
	now := time.Now()
	return &Envelope{
		ID:         uuid.NewString(),
		Timestamp:  now,
		RoutingKey: routingKey,
		Payload:    payload,
		Persistent: persistent,
		expiresAt:  now.Add(ttl),
	}
}

func (e *Envelope) expired() bool {
	return time.Now().After(e.expiresAt)
}

// Handler processes one delivered envelope. Returning an error rejects the
// message (it is routed to the dead-letter queue); returning nil acknowledges it.
type Handler func(*Envelope) error

// HealthReport is returned by Bus.HealthCheck.
type HealthReport struct {
	Connected        bool `json:"connected"`
	ExchangeCount    int  `json:"exchange_count"`
	QueueCount       int  `json:"queue_count"`
	SubscriberCount  int  `json:"subscriber_count"`
	DeadLetterCount  int  `json:"dead_letter_count"`
}
