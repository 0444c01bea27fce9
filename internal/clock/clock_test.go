// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package clock

import (
	"testing"
	"time"
)

func TestSystemClock(t *testing.T) {
	before := time.Now()
	got := Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(start)

	restore := SetClock(mock)
	defer restore()

	if got := Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	mock.Advance(90 * time.Second)
	if got := Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("after Advance, Now() = %v, want %v", got, start.Add(90*time.Second))
	}

	mid := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.Set(mid)
	if got := Now(); !got.Equal(mid) {
		t.Errorf("after Set, Now() = %v, want %v", got, mid)
	}
}

func TestSetClockRestores(t *testing.T) {
	mock := NewMockClock(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	restore := SetClock(mock)
	restore()

	if Now().Year() == 2000 {
		t.Error("restore should reinstate the system clock")
	}
}
