// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package audit records who did what to which device. Every entry carries
// the caller's uid and resolved username; entries go to the structured
// log and, when enabled, to a SQLite store queried by status output and
// the diagnostics API.
package audit

import (
	"time"

	"github.com/google/uuid"

	"grimm.is/tundra/internal/clock"
	"grimm.is/tundra/internal/events"
	"grimm.is/tundra/internal/identity"
	"grimm.is/tundra/internal/logging"
)

// EventType defines the type of audit event.
type EventType string

const (
	EventDeviceCreate    EventType = "device_create"
	EventDeviceEstablish EventType = "device_establish"
	EventDeviceDisable   EventType = "device_disable"
	EventDeviceDestroy   EventType = "device_destroy"
	EventDNSApply        EventType = "dns_apply"
	EventDNSRestore      EventType = "dns_restore"
	EventAccessDenied    EventType = "access_denied"
	EventDaemonStart     EventType = "daemon_start"
	EventDaemonStop      EventType = "daemon_stop"
)

// Severity defines the severity level of an audit event.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Event is a single audit entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	UID       uint32    `json:"uid"`
	Username  string    `json:"username,omitempty"`
	Device    string    `json:"device,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Journal writes audit events. A nil store disables persistence; the
// structured log always receives entries.
type Journal struct {
	logger *logging.Logger
	store  *Store
	names  *identity.Resolver
}

// NewJournal builds a Journal. store may be nil.
func NewJournal(logger *logging.Logger, store *Store, names *identity.Resolver) *Journal {
	if logger == nil {
		logger = logging.Default().WithComponent("audit")
	}
	if names == nil {
		names = identity.NewResolver()
	}
	return &Journal{logger: logger, store: store, names: names}
}

// Record fills in id, timestamp and username, then writes the event.
func (j *Journal) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = clock.Now()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.Username == "" {
		e.Username = j.names.Username(e.UID)
	}

	log := j.logger.WithFields(
		"audit_id", e.ID,
		"type", string(e.Type),
		"uid", e.UID,
		"username", e.Username,
	)
	if e.Device != "" {
		log = log.WithFields("device", e.Device)
	}
	switch e.Severity {
	case SeverityError:
		log.Error(e.Detail)
	case SeverityWarn:
		log.Warn(e.Detail)
	default:
		log.Info(e.Detail)
	}

	if j.store != nil {
		if err := j.store.Insert(e); err != nil {
			j.logger.Error("persisting audit event failed", "error", err)
		}
	}
}

// Recent returns the newest limit entries, or nil without a store.
func (j *Journal) Recent(limit int) ([]Event, error) {
	if j.store == nil {
		return nil, nil
	}
	return j.store.Recent(limit)
}

// Consume drains the event bus into the journal until the channel
// closes. Run it in its own goroutine.
func (j *Journal) Consume(ch <-chan events.Event) {
	for ev := range ch {
		e := Event{
			Timestamp: ev.Timestamp,
			UID:       ev.UID,
			Device:    ev.Device,
			Detail:    ev.Detail,
		}
		switch ev.Type {
		case events.DeviceCreated:
			e.Type = EventDeviceCreate
			e.Detail = "device created: " + ev.Name
		case events.DeviceEstablished:
			e.Type = EventDeviceEstablish
			e.Detail = "device established as " + ev.Interface
		case events.DeviceDisabled:
			e.Type = EventDeviceDisable
			e.Detail = "device disabled"
		case events.DeviceDestroyed:
			e.Type = EventDeviceDestroy
			e.Detail = "device destroyed"
		case events.ResolverApplied:
			e.Type = EventDNSApply
			e.Detail = "host DNS configuration applied"
		case events.ResolverRestored:
			e.Type = EventDNSRestore
			e.Detail = "host DNS configuration restored"
		case events.AccessDenied:
			e.Type = EventAccessDenied
			e.Severity = SeverityWarn
			e.Detail = "operation denied"
		default:
			continue
		}
		j.Record(e)
	}
}
