// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package audit

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"grimm.is/tundra/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndRecent(t *testing.T) {
	s := openTestStore(t)

	base := time.Unix(1700000000, 0)
	for i, typ := range []EventType{EventDeviceCreate, EventDeviceEstablish, EventDeviceDestroy} {
		err := s.Insert(Event{
			ID:        string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      typ,
			Severity:  SeverityInfo,
			UID:       1000,
			Username:  "session",
			Device:    "dev-1",
			Detail:    "x",
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d events, want 2", len(got))
	}
	if got[0].Type != EventDeviceDestroy {
		t.Errorf("newest event = %s, want %s", got[0].Type, EventDeviceDestroy)
	}
	if got[0].UID != 1000 || got[0].Username != "session" {
		t.Errorf("caller identity not round-tripped: %+v", got[0])
	}
}

func TestByDevice(t *testing.T) {
	s := openTestStore(t)

	for _, dev := range []string{"dev-1", "dev-2", "dev-1"} {
		if err := s.Insert(Event{ID: dev + time.Now().String(), Timestamp: time.Now(), Type: EventDeviceCreate, Severity: SeverityInfo, Device: dev}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ByDevice("dev-1", 10)
	if err != nil {
		t.Fatalf("ByDevice: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ByDevice returned %d events, want 2", len(got))
	}
}

func TestJournalRecordPersists(t *testing.T) {
	s := openTestStore(t)
	logger := logging.New(logging.Config{Output: io.Discard})
	j := NewJournal(logger, s, nil)

	j.Record(Event{Type: EventAccessDenied, Severity: SeverityWarn, UID: 4242, Device: "dev-9", Detail: "operation denied"})

	got, err := j.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("journal did not persist the event")
	}
	if got[0].ID == "" {
		t.Error("Record should assign an id")
	}
	if got[0].Username == "" {
		t.Error("Record should resolve a username, falling back to the numeric uid")
	}
}
