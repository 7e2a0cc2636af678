package engine

import (
	"sync"
	"time"
)

// EventType identifies an engine event.
type EventType string

// Engine event types.
const (
	EventScanAccepted   EventType = "scan_accepted"
	EventScanRejected   EventType = "scan_rejected"
	EventGroupCompleted EventType = "group_completed"
	EventLinesIngested  EventType = "lines_ingested"
	EventExtraConfirmed EventType = "extra_confirmed"
	EventMastersReload  EventType = "masters_reloaded"
)

// Event is a typed engine event with its payload.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// ScanAcceptedEvent accompanies EventScanAccepted.
type ScanAcceptedEvent struct {
	Barcode string  `json:"barcode"`
	RowID   string  `json:"row_id"`
	Result  *Result `json:"result"`
}

// ScanRejectedEvent accompanies EventScanRejected.
type ScanRejectedEvent struct {
	Barcode string `json:"barcode"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// GroupCompletedEvent accompanies EventGroupCompleted.
type GroupCompletedEvent struct {
	ContactNumber string     `json:"contact_number"`
	AWB           string     `json:"awb"`
	PrintInfo     *PrintInfo `json:"print_info"`
}

// LinesIngestedEvent accompanies EventLinesIngested.
type LinesIngestedEvent struct {
	SourceFile string `json:"source_file"`
	Received   int    `json:"received"`
	Added      int    `json:"added"`
}

// ExtraConfirmedEvent accompanies EventExtraConfirmed.
type ExtraConfirmedEvent struct {
	RowID string `json:"row_id"`
	Token string `json:"token"`
}

// SubscriberID uniquely identifies an EventBus subscriber.
type SubscriberID uint64

// SubscriberFunc is a callback invoked when an event is emitted.
type SubscriberFunc func(Event)

type subscriber struct {
	id SubscriberID
	fn SubscriberFunc
}

// EventBus provides synchronous, typed event dispatch. Subscribers are
// called in registration order on the emitting goroutine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      SubscriberID
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a callback for all event types.
func (eb *EventBus) Subscribe(fn SubscriberFunc) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.subscribers = append(eb.subscribers, subscriber{id: id, fn: fn})
	return id
}

// Unsubscribe removes a subscriber by ID.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, s := range eb.subscribers {
		if s.id == id {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Emit dispatches an event synchronously to all subscribers.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	subs := make([]subscriber, len(eb.subscribers))
	copy(subs, eb.subscribers)
	eb.mu.RUnlock()

	for _, s := range subs {
		s.fn(evt)
	}
}

func (e *Engine) emit(t EventType, payload interface{}) {
	e.Events.Emit(Event{Type: t, Payload: payload})
}
