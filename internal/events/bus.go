// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package events carries device lifecycle notifications from the core to
// interested consumers (the diagnostics event stream, the audit journal).
// Publishing never blocks the core: a subscriber that cannot keep up
// loses events rather than stalling device operations.
package events

import (
	"sync"
	"time"

	"grimm.is/tundra/internal/clock"
)

// Type identifies what happened.
type Type string

const (
	DeviceCreated      Type = "device.created"
	DeviceEstablished  Type = "device.established"
	DeviceDisabled     Type = "device.disabled"
	DeviceDestroyed    Type = "device.destroyed"
	DeviceModified     Type = "device.modified"
	ResolverApplied    Type = "resolver.applied"
	ResolverRestored   Type = "resolver.restored"
	AccessDenied       Type = "access.denied"
)

// Event is a single notification.
type Event struct {
	Type      Type      `json:"type"`
	Device    string    `json:"device,omitempty"`
	Name      string    `json:"name,omitempty"`
	Interface string    `json:"interface,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	UID       uint32    `json:"uid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a consumer with the given channel buffer and returns
// the receive channel plus a cancel function. Cancel is idempotent and
// closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish delivers e to every subscriber. Slow subscribers with full
// buffers are skipped; delivery is best-effort.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = clock.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
