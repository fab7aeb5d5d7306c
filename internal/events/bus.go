// Package events provides a publish/subscribe event bus for
// operational observability. Events flow from components (hub client,
// grouping refresh, override store, discovery) to subscribers
// (WebSocket handler, MQTT notifier). The bus is nil-safe: calling
// Publish on a nil *Bus is a no-op, so components do not need guard
// checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceHub identifies events from the Home Assistant connection.
	SourceHub = "hub"
	// SourceDashboard identifies events from view refresh cycles.
	SourceDashboard = "dashboard"
	// SourceOverrides identifies events from the override store.
	SourceOverrides = "overrides"
	// SourceDiscovery identifies events from new-device detection.
	SourceDiscovery = "discovery"
)

// Kind constants describe the type of event within a source.
const (
	// KindSnapshotReplaced signals a full state resync from the hub.
	// Data: entities.
	KindSnapshotReplaced = "snapshot_replaced"
	// KindHubDisconnected signals the WebSocket connection dropped.
	// Data: error.
	KindHubDisconnected = "hub_disconnected"
	// KindHubReconnected signals the WebSocket connection recovered.
	KindHubReconnected = "hub_reconnected"

	// KindRefreshComplete signals a grouping refresh finished.
	// Data: entities, groups, rooms, elapsed_ms.
	KindRefreshComplete = "refresh_complete"

	// KindOverrideSaved signals an override edit was applied.
	// Data: device_id.
	KindOverrideSaved = "override_saved"

	// KindNewDevice signals an unassigned device appeared.
	// Data: device_id, name.
	KindNewDevice = "new_device"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's <-chan Event view.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full. Drop rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
