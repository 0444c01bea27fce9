// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package resolver models host DNS configuration as a single shared,
// reference-counted resource. Devices stage server and search-domain
// changes into one Settings instance; Apply commits the staged state to
// the configured backend, Restore reverts to the pre-session baseline.
// The device-dependency count decides when Restore may run: only the
// last device tearing down triggers it.
package resolver

import (
	"sync"

	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/logging"
)

// Backend applies DNS configuration to the host. Implementations live in
// the resolvconf and resolved subpackages.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// Commit replaces the host DNS configuration with the given servers
	// and search domains.
	Commit(servers, search []string) error
	// Restore reverts the host to its pre-session DNS configuration.
	// Restore on a backend that never committed is a no-op.
	Restore() error
}

// LinkBinder is implemented by backends that scope DNS configuration to a
// network interface and need the interface index once a device exists.
type LinkBinder interface {
	BindLink(ifindex int) error
}

// Settings is the shared resolver state. All methods are safe for
// concurrent use by multiple devices.
type Settings struct {
	mu      sync.Mutex
	backend Backend
	logger  *logging.Logger

	servers []string
	search  []string

	modified    bool
	applied     bool
	deviceCount int
}

// New creates Settings committing through the given backend.
func New(backend Backend, logger *logging.Logger) *Settings {
	if logger == nil {
		logger = logging.Default().WithComponent("resolver")
	}
	return &Settings{
		backend: backend,
		logger:  logger,
	}
}

// BackendName returns the name of the configured backend.
func (s *Settings) BackendName() string {
	return s.backend.Name()
}

// AddServers stages DNS servers, preserving order and skipping entries
// already staged.
func (s *Settings) AddServers(servers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appendUnique(&s.servers, servers) {
		s.modified = true
	}
}

// RemoveServers unstages DNS servers; absent entries are ignored.
func (s *Settings) RemoveServers(servers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if removePresent(&s.servers, servers) {
		s.modified = true
	}
}

// AddSearchDomains stages search domains, preserving order and skipping
// duplicates.
func (s *Settings) AddSearchDomains(domains []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appendUnique(&s.search, domains) {
		s.modified = true
	}
}

// RemoveSearchDomains unstages search domains; absent entries are ignored.
func (s *Settings) RemoveSearchDomains(domains []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if removePresent(&s.search, domains) {
		s.modified = true
	}
}

// Servers returns a copy of the staged server list.
func (s *Settings) Servers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.servers...)
}

// SearchDomains returns a copy of the staged search-domain list.
func (s *Settings) SearchDomains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.search...)
}

// GetModified reports whether staged changes differ from the applied
// state.
func (s *Settings) GetModified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified
}

// IncDeviceCount records one more device depending on this resolver.
// Called exactly once per device at creation.
func (s *Settings) IncDeviceCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceCount++
}

// DecDeviceCount records one device releasing this resolver and returns
// the remaining count. The count never goes below zero; an underflow
// indicates an Inc/Dec pairing bug and is logged.
func (s *Settings) DecDeviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceCount == 0 {
		s.logger.Warn("resolver device count underflow")
		return 0
	}
	s.deviceCount--
	return s.deviceCount
}

// DeviceCount returns the current dependency count.
func (s *Settings) DeviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceCount
}

// Apply commits the staged configuration to the backend and clears the
// modified flag. Calling Apply with nothing staged is a no-op.
func (s *Settings) Apply() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.modified {
		return nil
	}

	if err := s.backend.Commit(s.servers, s.search); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "applying DNS configuration via %s", s.backend.Name())
	}

	s.logger.Info("DNS configuration applied",
		"backend", s.backend.Name(),
		"servers", len(s.servers),
		"search", len(s.search))
	s.modified = false
	s.applied = true
	return nil
}

// Restore reverts the host resolver to its pre-session state and resets
// the staged configuration. It is idempotent: calling it twice, or when
// Apply never ran, does nothing and returns nil.
func (s *Settings) Restore() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.applied {
		return nil
	}

	if err := s.backend.Restore(); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "restoring DNS configuration via %s", s.backend.Name())
	}

	s.logger.Info("DNS configuration restored", "backend", s.backend.Name())
	s.applied = false
	s.modified = false
	s.servers = nil
	s.search = nil
	return nil
}

// BindLink forwards the established interface index to link-scoped
// backends. Backends without link scoping ignore it.
func (s *Settings) BindLink(ifindex int) error {
	if lb, ok := s.backend.(LinkBinder); ok {
		if err := lb.BindLink(ifindex); err != nil {
			return errors.Wrapf(err, errors.KindSystem, "binding DNS configuration to link %d", ifindex)
		}
	}
	return nil
}

func appendUnique(dst *[]string, add []string) bool {
	changed := false
	for _, v := range add {
		if v == "" {
			continue
		}
		found := false
		for _, existing := range *dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			*dst = append(*dst, v)
			changed = true
		}
	}
	return changed
}

func removePresent(dst *[]string, remove []string) bool {
	changed := false
	for _, v := range remove {
		for i, existing := range *dst {
			if existing == v {
				*dst = append((*dst)[:i], (*dst)[i+1:]...)
				changed = true
				break
			}
		}
	}
	return changed
}
