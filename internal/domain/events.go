package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a progress event
type EventType string

const (
	EventXPAwarded           EventType = "xp.awarded"
	EventLevelUp             EventType = "level.up"
	EventAchievementUnlocked EventType = "achievement.unlocked"
	EventToolSaved           EventType = "tool.saved"
	EventToolUpdated         EventType = "tool.updated"
	EventToolDeleted         EventType = "tool.deleted"
	EventStreakUpdated       EventType = "streak.updated"
	EventLessonCompleted     EventType = "lesson.completed"
	EventCodeRun             EventType = "code.run"
)

// ProgressEvent records a single mutation of a learner's progress
type ProgressEvent struct {
	ID         uuid.UUID      `json:"id"`
	UserID     string         `json:"user_id"`
	Type       EventType      `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewProgressEvent stamps a new event with an id and the current time
func NewProgressEvent(userID string, eventType EventType, payload map[string]any) ProgressEvent {
	return ProgressEvent{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       eventType,
		Payload:    payload,
		OccurredAt: time.Now(),
	}
}

// EventHandler processes progress events
type EventHandler func(event ProgressEvent)

// EventDispatcher fans progress events out to subscribers
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventDispatcher creates an empty dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to type-specific handlers, then catch-all ones
func (d *EventDispatcher) Publish(event ProgressEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, h := range d.handlers[event.Type] {
		h(event)
	}
	for _, h := range d.allHandlers {
		h(event)
	}
}

// PublishAll dispatches events in order
func (d *EventDispatcher) PublishAll(events []ProgressEvent) {
	for _, event := range events {
		d.Publish(event)
	}
}
