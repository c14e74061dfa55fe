package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Notice types surfaced to the clinician.
const (
	NoticeDelivered     = "delivered"
	NoticeRetrying      = "retrying"
	NoticeQueued        = "queued"
	NoticeDrained       = "drained"
	NoticeAbandoned     = "abandoned"
	NoticeCaptureFailed = "capture_failed"
	NoticeStatusChanged = "status_changed"
)

// wildcard subscribers receive every event type.
const wildcard = "*"

// NoticePayload is the JSON body attached to pipeline notices.
type NoticePayload struct {
	RecordingID string `json:"recording_id,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	Delivered   int    `json:"delivered,omitempty"`
	Remaining   int    `json:"remaining,omitempty"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Event represents a lightweight pipeline event.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.Subscribe(wildcard, handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.Lock()
	b.seq++
	if event.ID == 0 {
		event.ID = b.seq
	}
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	if event.Type != wildcard {
		handlers = append(handlers, b.subscribers[wildcard]...)
	}
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// Journal keeps the most recent events for inspection.
type Journal struct {
	mu     sync.Mutex
	size   int
	events []Event
}

func NewJournal(size int) *Journal {
	if size <= 0 {
		size = 100
	}
	return &Journal{size: size}
}

// Record appends an event, dropping the oldest one when full. It satisfies EventHandler.
func (j *Journal) Record(event *Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, *event)
	if over := len(j.events) - j.size; over > 0 {
		j.events = append([]Event(nil), j.events[over:]...)
	}
	return nil
}

// Recent returns up to limit events, newest last. A non-positive limit returns all.
func (j *Journal) Recent(limit int) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	start := 0
	if limit > 0 && len(j.events) > limit {
		start = len(j.events) - limit
	}
	return append([]Event(nil), j.events[start:]...)
}
