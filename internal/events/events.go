package events

import (
	"sync"
	"time"

	"nextslot/internal/models"
)

// Kind discriminates appointment write events.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// AppointmentEvent is a tagged union over appointment writes. The populated
// payloads depend on Kind: Created carries After only, Deleted carries
// Before only, Updated carries both.
type AppointmentEvent struct {
	Kind       Kind
	Before     *models.Appointment
	After      *models.Appointment
	OccurredAt time.Time
}

// Created builds an event for a freshly written appointment.
func Created(after models.Appointment) AppointmentEvent {
	return AppointmentEvent{Kind: KindCreated, After: &after, OccurredAt: time.Now()}
}

// Updated builds an event for an in-place appointment change.
func Updated(before, after models.Appointment) AppointmentEvent {
	return AppointmentEvent{Kind: KindUpdated, Before: &before, After: &after, OccurredAt: time.Now()}
}

// Deleted builds an event for a removed appointment.
func Deleted(before models.Appointment) AppointmentEvent {
	return AppointmentEvent{Kind: KindDeleted, Before: &before, OccurredAt: time.Now()}
}

// ProviderID returns the provider the event belongs to, regardless of kind.
func (e AppointmentEvent) ProviderID() string {
	if e.After != nil {
		return e.After.ProviderID
	}
	if e.Before != nil {
		return e.Before.ProviderID
	}
	return ""
}

// Handler reacts to an appointment event. Handlers must be idempotent:
// the source delivers at least once, not exactly once.
type Handler func(event AppointmentEvent)

// Bus provides in-process pub/sub for appointment events.
type Bus struct {
	subscribers []Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all appointment events.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, handler)
}

// Publish notifies every subscriber. Each handler runs in its own
// goroutine so a slow consumer does not delay the write path or its
// sibling consumers.
func (b *Bus) Publish(event AppointmentEvent) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers...)
	b.mu.RUnlock()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	for _, handler := range handlers {
		go handler(event)
	}
}

// PublishSync notifies subscribers on the calling goroutine, in order.
// Used by tests and the synchronous admin triggers.
func (b *Bus) PublishSync(event AppointmentEvent) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers...)
	b.mu.RUnlock()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	for _, handler := range handlers {
		handler(event)
	}
}
