// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netcfg

import (
	"sync"

	"github.com/google/uuid"

	"grimm.is/tundra/internal/acl"
	"grimm.is/tundra/internal/clock"
	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/events"
	"grimm.is/tundra/internal/identity"
	"grimm.is/tundra/internal/logging"
	"grimm.is/tundra/internal/metrics"
	"grimm.is/tundra/internal/netops"
	"grimm.is/tundra/internal/resolver"
	"grimm.is/tundra/internal/tun"
)

// RegistryConfig wires the Registry's collaborators. Policy and Netlink
// are required; the rest may be nil (resolver-less operation, no
// events/metrics in tests).
type RegistryConfig struct {
	Policy     *acl.Policy
	Netlink    netops.Netlinker
	Opener     tun.Opener
	Resolver   *resolver.Settings
	Bus        *events.Bus
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
	DefaultMTU int
}

// Registry owns every live Device. It assigns handles, guarantees no two
// live Devices share one, and drops the mapping when a Device destroys
// itself.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device

	policy     *acl.Policy
	nl         netops.Netlinker
	opener     tun.Opener
	resolver   *resolver.Settings
	bus        *events.Bus
	metrics    *metrics.Metrics
	logger     *logging.Logger
	defaultMTU int
}

// NewRegistry builds an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("netcfg")
	}
	opener := cfg.Opener
	if opener == nil {
		opener = tun.OpenerFunc(tun.Open)
	}
	mtu := cfg.DefaultMTU
	if mtu == 0 {
		mtu = DefaultMTU
	}
	return &Registry{
		devices:    make(map[string]*Device),
		policy:     cfg.Policy,
		nl:         cfg.Netlink,
		opener:     opener,
		resolver:   cfg.Resolver,
		bus:        cfg.Bus,
		metrics:    cfg.Metrics,
		logger:     logger,
		defaultMTU: mtu,
	}
}

// CreateRequest are the caller-supplied parameters for a new Device.
type CreateRequest struct {
	Name     string
	Kind     tun.Kind
	LogLevel int
}

// Create authorizes the caller, builds a Device owned by the caller's
// uid, binds the shared resolver (incrementing its dependency count) and
// registers the new handle. The Device is addressable before Create
// returns.
func (r *Registry) Create(c identity.Caller, req CreateRequest) (*Device, error) {
	if err := r.policy.CheckCaller(c); err != nil {
		if r.metrics != nil {
			r.metrics.AuthzDenialsTotal.Inc()
		}
		r.logger.Warn("device creation denied", "uid", c.UID, "pid", c.PID)
		return nil, err
	}

	if req.Name == "" {
		return nil, errors.New(errors.KindValidation, "device name must not be empty")
	}
	if len(req.Name) >= 16 {
		return nil, errors.Errorf(errors.KindValidation, "device name %q too long", req.Name)
	}
	if !req.Kind.Valid() {
		return nil, errors.Errorf(errors.KindValidation, "unknown device kind %q", req.Kind)
	}
	if req.LogLevel < 0 || req.LogLevel > MaxLogLevel {
		return nil, errors.Errorf(errors.KindValidation, "log level %d outside valid range 0-%d", req.LogLevel, MaxLogLevel)
	}

	handle := uuid.NewString()

	d := &Device{
		handle:   handle,
		name:     req.Name,
		kind:     req.Kind,
		state:    StateStaged,
		mtu:      r.defaultMTU,
		logLevel: req.LogLevel,
		grant:    acl.NewGrant(c.UID),
		resolver: r.resolver,
		deps: deviceDeps{
			policy:   r.policy,
			nl:       r.nl,
			opener:   r.opener,
			bus:      r.bus,
			metrics:  r.metrics,
			logger:   r.logger.WithFields("name", req.Name),
			onRemove: r.remove,
			onChange: r.refreshGauge,
		},
	}

	if r.resolver != nil {
		r.resolver.IncDeviceCount()
	}

	r.mu.Lock()
	r.devices[handle] = d
	r.mu.Unlock()

	r.logger.Info("device created", "device", handle, "name", req.Name, "kind", req.Kind, "uid", c.UID)
	if r.bus != nil {
		r.bus.Publish(events.Event{
			Type:      events.DeviceCreated,
			Device:    handle,
			Name:      req.Name,
			UID:       c.UID,
			Timestamp: clock.Now(),
		})
	}
	r.refreshGauge()
	return d, nil
}

// Get resolves a handle to a live Device.
func (r *Registry) Get(handle string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[handle]
	if !ok {
		return nil, errors.Errorf(errors.KindNotFound, "no device with handle %q", handle)
	}
	return d, nil
}

// List returns every live Device in no particular order.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Len returns the number of live Devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// remove is the removal callback handed to each Device; Destroy invokes
// it while unregistering.
func (r *Registry) remove(handle string) {
	r.mu.Lock()
	delete(r.devices, handle)
	r.mu.Unlock()
}

// Shutdown destroys every remaining Device as root. Used on daemon exit
// so interfaces disappear and the resolver baseline comes back.
func (r *Registry) Shutdown() {
	root := identity.Caller{UID: 0}
	for _, d := range r.List() {
		if err := d.Destroy(root); err != nil {
			r.logger.Error("destroying device during shutdown failed", "device", d.Handle(), "error", err)
		}
	}
}

// refreshGauge recomputes the devices-by-state gauge after a lifecycle
// transition.
func (r *Registry) refreshGauge() {
	if r.metrics == nil {
		return
	}
	counts := map[State]int{}
	for _, d := range r.List() {
		counts[d.State()]++
	}
	for _, s := range []State{StateStaged, StateActive, StateDisabled} {
		r.metrics.DevicesByState.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
