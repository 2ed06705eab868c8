/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventSessionJoined   EventType = "session.joined"
	EventSessionLeft     EventType = "session.left"
	EventSessionEnded    EventType = "session.ended"
	EventQueueUpdated    EventType = "queue.updated"
	EventNowPlaying      EventType = "now_playing"
	EventConnectionState EventType = "connection.state"
)

// SessionEvents lists every type the orchestrator publishes.
var SessionEvents = []EventType{
	EventSessionJoined,
	EventSessionLeft,
	EventSessionEnded,
	EventQueueUpdated,
	EventNowPlaying,
	EventConnectionState,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Broker is implemented by the in-process Bus and the distributed buses.
type Broker interface {
	Publish(eventType EventType, payload Payload)
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes and closes the subscriber. Unknown subscribers are ignored.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Subscribers returns the number of subscribers for eventType.
func (b *Bus) Subscribers(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
