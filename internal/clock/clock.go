// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides the time source for the rest of the service.
// Production code calls clock.Now() instead of time.Now() so tests and
// replay tooling can substitute a controllable clock.
package clock

import (
	"sync"
	"time"
)

// Clock is a source of the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

var (
	mu     sync.RWMutex
	active Clock = SystemClock{}
)

// Now returns the current time from the active clock.
func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return active.Now()
}

// Since returns the time elapsed since t according to the active clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// SetClock replaces the active clock and returns a restore function.
func SetClock(c Clock) func() {
	mu.Lock()
	prev := active
	active = c
	mu.Unlock()
	return func() {
		mu.Lock()
		active = prev
		mu.Unlock()
	}
}

// MockClock is a manually advanced clock for tests and simulation.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock returns a MockClock frozen at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

// Now returns the mock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the mock to an absolute time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the mock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
