package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/gwww/upb-lib/registry"
)

// Topic identifies one of the bus's notification channels.
type Topic int

const (
	// Connected fires when the connection reaches the ready state.
	Connected Topic = iota

	// Disconnected fires when the transport is lost or shut down.
	Disconnected

	// DeviceUpdated fires after a device status change is committed.
	DeviceUpdated

	// LinkActivated fires after a scene command is applied to a link.
	LinkActivated
)

// String returns the topic name.
func (t Topic) String() string {
	switch t {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case DeviceUpdated:
		return "device-updated"
	case LinkActivated:
		return "link-activated"
	default:
		return "unknown"
	}
}

// Event is a single notification. Device is set for DeviceUpdated, Link for
// LinkActivated; both are snapshots.
type Event struct {
	Topic  Topic
	Device *registry.Device
	Link   *registry.Link
	At     time.Time
}

// Logger is the diagnostic sink for handler panics.
type Logger interface {
	Error(msg string, args ...any)
}

// subscriber pairs a handler with its registration ID for removal.
type subscriber struct {
	id int
	fn func(Event)
}

// Bus is a typed event bus with a fixed topic set.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscriber
	nextID int
	logger Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscriber)}
}

// SetLogger sets the sink for handler panic reports.
func (b *Bus) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Subscribe registers a handler for a topic and returns a cancel function.
// The handler runs on the publishing goroutine and should not block.
func (b *Bus) Subscribe(topic Topic, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers an event to every subscriber of its topic. Panics in
// handlers are recovered and logged.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs[e.Topic]))
	for _, s := range b.subs[e.Topic] {
		handlers = append(handlers, s.fn)
	}
	logger := b.logger
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.deliver(fn, e, logger)
	}
}

func (b *Bus) deliver(fn func(Event), e Event, logger Logger) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("event handler panic", "topic", e.Topic.String(),
				"panic", fmt.Sprintf("%v", r))
		}
	}()
	fn(e)
}
