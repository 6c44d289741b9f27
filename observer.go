// Package razy provides Observer pattern interfaces for lifecycle events.
// Events use the CloudEvents specification for standardized format and
// interoperability with external systems.
package razy

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of
// framework lifecycle events. Observers register with a Subject to receive
// notifications as modules move through their lifecycle.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is interested in.
	// Observers should handle events quickly to avoid blocking dispatch.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed.
type Subject interface {
	// RegisterObserver adds an observer to receive notifications.
	// If eventTypes is empty, the observer receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all registered observers,
	// handling observer errors gracefully.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	// ID is the unique identifier of the observer
	ID string `json:"id"`

	// EventTypes are the event types this observer is subscribed to.
	// Empty slice means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt indicates when the observer was registered
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for framework lifecycle events. These provide a
// standardized vocabulary of CloudEvent types emitted by the core engine,
// using reverse-domain notation per the CloudEvents specification.
const (
	// Module lifecycle events
	EventTypeModuleDiscovered = "com.razy.module.discovered"
	EventTypeModuleActivated  = "com.razy.module.activated"
	EventTypeModuleFailed     = "com.razy.module.failed"
	EventTypeModuleLoaded     = "com.razy.module.loaded"
	EventTypeModuleUnloaded   = "com.razy.module.unloaded"

	// Distributor lifecycle events
	EventTypeDistributorReady   = "com.razy.distributor.ready"
	EventTypeDistributorAborted = "com.razy.distributor.aborted"

	// Routing events
	EventTypeRouteMatched = "com.razy.route.matched"

	// Cross-domain events
	EventTypePeerConnected = "com.razy.peer.connected"
)

// FunctionalObserver provides a simple way to create observers from
// functions without defining full structs.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that delegates to the provided
// function.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// observerRegistration holds information about a registered observer.
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventSubject is the standard Subject implementation shared by the
// Application and every Distributor it resolves. Delivery is synchronous
// and in registration-iteration order; observer panics are contained.
type EventSubject struct {
	logger    Logger
	observers map[string]*observerRegistration
	mu        sync.RWMutex
}

// NewEventSubject creates an empty subject logging through the given logger.
func NewEventSubject(logger Logger) *EventSubject {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &EventSubject{
		logger:    logger,
		observers: make(map[string]*observerRegistration),
	}
}

// RegisterObserver adds an observer, optionally filtered by event types.
func (s *EventSubject) RegisterObserver(observer Observer, eventTypes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventTypeMap := make(map[string]bool)
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	s.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	s.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Idempotent.
func (s *EventSubject) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.observers, observer.ObserverID())
	return nil
}

// NotifyObservers delivers the event to every interested observer.
func (s *EventSubject) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}

	if err := ValidateCloudEvent(event); err != nil {
		s.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	for _, registration := range s.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Observer panicked", "observerID", registration.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()

			if err := registration.observer.OnEvent(ctx, event); err != nil {
				s.logger.Error("Observer error", "observerID", registration.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}

	return nil
}

// GetObservers returns information about currently registered observers.
func (s *EventSubject) GetObservers() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(s.observers))
	for _, registration := range s.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}

		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}

	return info
}

// emit builds and delivers a lifecycle event, swallowing notification
// errors so observers can never break the dispatch path.
func (s *EventSubject) emit(ctx context.Context, eventType, source string, data any, metadata map[string]any) {
	if s == nil {
		return
	}
	event := NewCloudEvent(eventType, source, data, metadata)
	if err := s.NotifyObservers(ctx, event); err != nil {
		s.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
