// Package bus publishes session and run lifecycle events, either to
// NATS or to an in-process bus when no broker is configured.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subjects for lifecycle events.
const (
	SubjectSessionCreated = "reviewd.session.created"
	SubjectSessionClosed  = "reviewd.session.closed"
	SubjectRunStarted     = "reviewd.run.started"
	SubjectRunFinished    = "reviewd.run.finished"
)

// Event is one message on the bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates an event stamped with a fresh id and the current time.
func NewEvent(eventType string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "reviewd",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler handles one delivered event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus abstracts the broker.
type EventBus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe registers a handler for a subject. A trailing ">"
	// token matches any suffix, as in NATS.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// Close shuts the bus down, draining where the broker supports it.
	Close()

	// IsConnected reports broker connectivity.
	IsConnected() bool
}
