package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Chat events
	EventMessageCreated EventType = "chat.message_created"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Chat Events
// ═══════════════════════════════════════════════════════════════════════════

// MessageCreatedEvent is emitted once per newly created message document
// at chats/{chatId}/messages/{messageId}. Document is the raw content of the
// new record; it is decoded by the handler, not by the trigger source.
type MessageCreatedEvent struct {
	BaseEvent
	ChatID    string          `json:"chat_id"`
	MessageID string          `json:"message_id"`
	Document  json.RawMessage `json:"document"`
	Source    string          `json:"source,omitempty"` // "postgres", "nats", "http"
}

// Payload implements Event interface.
func (e MessageCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"chat_id":    e.ChatID,
		"message_id": e.MessageID,
		"source":     e.Source,
	}
}

// NewMessageCreatedEvent creates a new MessageCreatedEvent.
func NewMessageCreatedEvent(chatID, messageID string, document json.RawMessage, source string) MessageCreatedEvent {
	return MessageCreatedEvent{
		BaseEvent: NewBaseEvent(EventMessageCreated, chatID),
		ChatID:    chatID,
		MessageID: messageID,
		Document:  document,
		Source:    source,
	}
}

// Validate checks that the path parameters are present.
func (e MessageCreatedEvent) Validate() error {
	if e.ChatID == "" {
		return NewDomainError("chat", "ValidateTrigger", ErrEmptyValue, "chat id is required")
	}
	if e.MessageID == "" {
		return NewDomainError("chat", "ValidateTrigger", ErrEmptyValue, "message id is required")
	}
	if len(e.Document) == 0 {
		return NewDomainError("chat", "ValidateTrigger", ErrEmptyValue, "message document is required")
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
