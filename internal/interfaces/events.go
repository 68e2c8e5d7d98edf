package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventBatchStarted   EventType = "batch_started"
	EventItemProcessed  EventType = "item_processed"
	EventItemError      EventType = "item_error"
	EventBatchCompleted EventType = "batch_completed"
	EventBatchCancelled EventType = "batch_cancelled"
	EventBatchFailed    EventType = "batch_failed"
)

// Event represents a system event. Payloads are plain maps keyed with
// snake_case names so observers need no engine types.
type Event struct {
	Type    EventType
	Payload map[string]interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID identifies one subscription for later removal
type SubscriptionID int64

// EventService manages the pub/sub event bus. Publishing is fire-and-forget,
// best-effort: handler errors are logged and swallowed, never propagated to
// the publisher.
type EventService interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType EventType, handler EventHandler) (SubscriptionID, error)

	// Unsubscribe removes a previously registered handler
	Unsubscribe(eventType EventType, id SubscriptionID) error

	// Publish delivers an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync delivers an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
