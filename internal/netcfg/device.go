// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netcfg is the device core: one Device per virtual interface a
// VPN session has requested, owned by the Registry and driven over the
// control socket. A Device stages addresses, routes and DNS changes,
// programs them onto the host on Establish, and tears them down on
// Disable/Destroy. Every operation is authorized before it mutates
// anything.
package netcfg

import (
	"sync"

	"grimm.is/tundra/internal/acl"
	"grimm.is/tundra/internal/clock"
	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/events"
	"grimm.is/tundra/internal/identity"
	"grimm.is/tundra/internal/logging"
	"grimm.is/tundra/internal/metrics"
	"grimm.is/tundra/internal/netops"
	"grimm.is/tundra/internal/netutil"
	"grimm.is/tundra/internal/resolver"
	"grimm.is/tundra/internal/tun"
)

// State is a Device's lifecycle position.
type State int

const (
	// StateStaged: created, configuration may be staged, nothing on the
	// host yet.
	StateStaged State = iota
	// StateActive: Establish succeeded, the interface is live.
	StateActive
	// StateDisabled: torn down after being active; staged configuration
	// survives for a future Establish.
	StateDisabled
	// StateDestroyed: terminal; the handle no longer resolves.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateStaged:
		return "staged"
	case StateActive:
		return "active"
	case StateDisabled:
		return "disabled"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// MTU bounds. The lower bound is the IPv4 minimum reassembly size; the
// kernel rejects anything below 68 anyway.
const (
	MinMTU     = 576
	MaxMTU     = 65535
	DefaultMTU = 1500
)

// MaxLogLevel bounds the per-device diagnostic verbosity (0..6).
const MaxLogLevel = 6

// Address is a staged interface address.
type Address struct {
	Address string `json:"address"`
	Prefix  int    `json:"prefix"`
}

// Route is a staged route; Gateway is shared by every target staged in
// the same AddRoutes call.
type Route struct {
	Network string `json:"network"`
	Prefix  int    `json:"prefix"`
	Gateway string `json:"gateway"`
}

// Target is one route destination within a batched AddRoutes/RemoveRoutes
// call.
type Target struct {
	Network string `json:"network"`
	Prefix  int    `json:"prefix"`
}

// Properties is a point-in-time snapshot of a Device, served to property
// reads on the control socket and the diagnostics API.
type Properties struct {
	Handle        string   `json:"handle"`
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	Interface     string   `json:"interface,omitempty"`
	MTU           int      `json:"mtu"`
	LogLevel      int      `json:"log_level"`
	Owner         uint32   `json:"owner"`
	ACL           []uint32 `json:"acl"`
	State         string   `json:"state"`
	Active        bool     `json:"active"`
	Modified      bool     `json:"modified"`
	IPv4Addresses []string `json:"ipv4_addresses"`
	IPv6Addresses []string `json:"ipv6_addresses"`
	Routes        []string `json:"routes"`
	DNSServers    []string `json:"dns_servers"`
	DNSSearch     []string `json:"dns_search"`
}

// deviceDeps are the collaborators a Device calls into, supplied by the
// Registry at creation.
type deviceDeps struct {
	policy   *acl.Policy
	nl       netops.Netlinker
	opener   tun.Opener
	bus      *events.Bus
	metrics  *metrics.Metrics
	logger   *logging.Logger
	onRemove func(handle string)
	onChange func()
}

// Device is the per-interface state machine. All methods serialize on the
// device mutex; operations against different Devices run concurrently.
type Device struct {
	mu sync.Mutex

	handle string
	name   string
	kind   tun.Kind

	state    State
	mtu      int
	logLevel int
	modified bool

	grant    *acl.Grant
	resolver *resolver.Settings

	addrs4 []Address
	addrs6 []Address
	routes []Route

	iface  *tun.Interface
	ifname string

	deps deviceDeps
}

// Handle returns the Device's stable opaque identity.
func (d *Device) Handle() string { return d.handle }

// Name returns the requested device name.
func (d *Device) Name() string { return d.name }

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Properties snapshots the Device.
func (d *Device) Properties() Properties {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := Properties{
		Handle:    d.handle,
		Name:      d.name,
		Kind:      string(d.kind),
		Interface: d.ifname,
		MTU:       d.mtu,
		LogLevel:  d.logLevel,
		Owner:     d.grant.Owner(),
		ACL:       d.grant.ACL(),
		State:     d.state.String(),
		Active:    d.state == StateActive,
		Modified:  d.modifiedLocked(),
	}
	for _, a := range d.addrs4 {
		p.IPv4Addresses = append(p.IPv4Addresses, netutil.FormatCIDR(a.Address, a.Prefix))
	}
	for _, a := range d.addrs6 {
		p.IPv6Addresses = append(p.IPv6Addresses, netutil.FormatCIDR(a.Address, a.Prefix))
	}
	for _, r := range d.routes {
		p.Routes = append(p.Routes, netutil.FormatRoute(r.Network, r.Prefix, r.Gateway))
	}
	if d.resolver != nil {
		p.DNSServers = d.resolver.Servers()
		p.DNSSearch = d.resolver.SearchDomains()
	}
	return p
}

// Grant exposes the device's access grant for ACL management.
func (d *Device) Grant() *acl.Grant { return d.grant }

// modifiedLocked is the property value: the device's own staging flag OR
// the shared resolver's.
func (d *Device) modifiedLocked() bool {
	if d.modified {
		return true
	}
	return d.resolver != nil && d.resolver.GetModified()
}

// authorize runs the general caller tier; owner additionally runs the
// owner/ACL tier. Denials are counted and published for audit before
// returning.
func (d *Device) authorize(c identity.Caller, owner bool) error {
	err := d.deps.policy.CheckCaller(c)
	if err == nil && owner {
		err = d.grant.CheckOwner(c)
	}
	if err != nil {
		if d.deps.metrics != nil {
			d.deps.metrics.AuthzDenialsTotal.Inc()
		}
		if d.deps.bus != nil {
			d.deps.bus.Publish(events.Event{
				Type:      events.AccessDenied,
				Device:    d.handle,
				Name:      d.name,
				UID:       c.UID,
				Timestamp: clock.Now(),
			})
		}
		d.deps.logger.Warn("operation denied", "device", d.handle, "uid", c.UID, "pid", c.PID)
	}
	return err
}

// checkStageable rejects staging mutations outside Staged/Disabled.
// Caller holds d.mu.
func (d *Device) checkStageable() error {
	switch d.state {
	case StateActive:
		return errors.New(errors.KindConflict, "configuration is frozen while the device is active")
	case StateDestroyed:
		return errors.New(errors.KindNotFound, "device is destroyed")
	}
	return nil
}

// AddIPv4Address stages an IPv4 address. Staging an address that is
// already present is a no-op success.
func (d *Device) AddIPv4Address(c identity.Caller, address string, prefix int) error {
	return d.mutateAddr(c, "ipv4", address, prefix, true)
}

// RemoveIPv4Address unstages an IPv4 address; removing an absent one is a
// no-op success.
func (d *Device) RemoveIPv4Address(c identity.Caller, address string, prefix int) error {
	return d.mutateAddr(c, "ipv4", address, prefix, false)
}

// AddIPv6Address stages an IPv6 address.
func (d *Device) AddIPv6Address(c identity.Caller, address string, prefix int) error {
	return d.mutateAddr(c, "ipv6", address, prefix, true)
}

// RemoveIPv6Address unstages an IPv6 address.
func (d *Device) RemoveIPv6Address(c identity.Caller, address string, prefix int) error {
	return d.mutateAddr(c, "ipv6", address, prefix, false)
}

func (d *Device) mutateAddr(c identity.Caller, family, address string, prefix int, add bool) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}
	if err := netutil.CheckAddress(family, address, prefix); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkStageable(); err != nil {
		return err
	}

	list := &d.addrs4
	if family == "ipv6" {
		list = &d.addrs6
	}
	entry := Address{Address: address, Prefix: prefix}

	idx := -1
	for i, a := range *list {
		if a == entry {
			idx = i
			break
		}
	}

	changed := false
	if add && idx < 0 {
		*list = append(*list, entry)
		changed = true
	}
	if !add && idx >= 0 {
		*list = append((*list)[:idx], (*list)[idx+1:]...)
		changed = true
	}
	if changed {
		d.markModifiedLocked()
	}
	return nil
}

// AddRoutes stages one batch of routes sharing a gateway. The whole batch
// is validated before any target is staged; a validation failure stages
// nothing.
func (d *Device) AddRoutes(c identity.Caller, targets []Target, gateway string) error {
	return d.mutateRoutes(c, targets, gateway, true)
}

// RemoveRoutes unstages a batch of routes sharing a gateway.
func (d *Device) RemoveRoutes(c identity.Caller, targets []Target, gateway string) error {
	return d.mutateRoutes(c, targets, gateway, false)
}

func (d *Device) mutateRoutes(c identity.Caller, targets []Target, gateway string, add bool) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New(errors.KindValidation, "no route targets given")
	}
	if err := netutil.CheckGateway(gateway); err != nil {
		return err
	}
	for _, t := range targets {
		family := "ipv4"
		if netutil.IsIPv6(t.Network) {
			family = "ipv6"
		}
		if err := netutil.CheckAddress(family, t.Network, t.Prefix); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkStageable(); err != nil {
		return err
	}

	changed := false
	for _, t := range targets {
		entry := Route{Network: t.Network, Prefix: t.Prefix, Gateway: gateway}
		idx := -1
		for i, r := range d.routes {
			if r == entry {
				idx = i
				break
			}
		}
		if add && idx < 0 {
			d.routes = append(d.routes, entry)
			changed = true
		}
		if !add && idx >= 0 {
			d.routes = append(d.routes[:idx], d.routes[idx+1:]...)
			changed = true
		}
	}
	if changed {
		d.markModifiedLocked()
	}
	return nil
}

// requireResolver returns the bound resolver or a configuration error.
func (d *Device) requireResolver() (*resolver.Settings, error) {
	if d.resolver == nil {
		return nil, errors.New(errors.KindConfig, "no DNS resolver is bound to this device")
	}
	return d.resolver, nil
}

// AddDNS stages DNS servers into the shared resolver settings.
func (d *Device) AddDNS(c identity.Caller, servers []string) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}
	r, err := d.requireResolver()
	if err != nil {
		return err
	}
	for _, s := range servers {
		if !netutil.IsIPv4(s) && !netutil.IsIPv6(s) {
			return errors.Errorf(errors.KindValidation, "invalid DNS server address %q", s)
		}
	}
	r.AddServers(servers)
	return nil
}

// RemoveDNS unstages DNS servers from the shared resolver settings.
func (d *Device) RemoveDNS(c identity.Caller, servers []string) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}
	r, err := d.requireResolver()
	if err != nil {
		return err
	}
	r.RemoveServers(servers)
	return nil
}

// AddDNSSearch stages DNS search domains into the shared resolver
// settings.
func (d *Device) AddDNSSearch(c identity.Caller, domains []string) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}
	r, err := d.requireResolver()
	if err != nil {
		return err
	}
	for _, dom := range domains {
		if dom == "" {
			return errors.New(errors.KindValidation, "empty search domain")
		}
	}
	r.AddSearchDomains(domains)
	return nil
}

// RemoveDNSSearch unstages DNS search domains.
func (d *Device) RemoveDNSSearch(c identity.Caller, domains []string) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}
	r, err := d.requireResolver()
	if err != nil {
		return err
	}
	r.RemoveSearchDomains(domains)
	return nil
}

// SetMTU changes the device MTU. While active the new value is programmed
// onto the live interface immediately.
func (d *Device) SetMTU(c identity.Caller, mtu int) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}
	if mtu < MinMTU || mtu > MaxMTU {
		return errors.Errorf(errors.KindValidation, "MTU %d outside valid range %d-%d", mtu, MinMTU, MaxMTU)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateDestroyed {
		return errors.New(errors.KindNotFound, "device is destroyed")
	}
	if d.state == StateActive {
		if err := d.deps.nl.SetMTU(d.ifname, mtu); err != nil {
			return err
		}
	}
	d.mtu = mtu
	return nil
}

// SetLogLevel changes the per-device diagnostic verbosity. Values outside
// 0..MaxLogLevel are rejected, never clamped.
func (d *Device) SetLogLevel(c identity.Caller, level int) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}
	if level < 0 || level > MaxLogLevel {
		return errors.Errorf(errors.KindValidation, "log level %d outside valid range 0-%d", level, MaxLogLevel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateDestroyed {
		return errors.New(errors.KindNotFound, "device is destroyed")
	}
	d.logLevel = level
	return nil
}

// Establish applies the shared resolver if modified, creates the host
// interface, programs the staged configuration, and activates the device.
// The returned Interface carries the descriptor the control plane passes
// to the caller out-of-band. Refused while already active.
func (d *Device) Establish(c identity.Caller) (*tun.Interface, error) {
	if err := d.authorize(c, false); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateActive:
		return nil, errors.New(errors.KindConflict, "device is already established")
	case StateDestroyed:
		return nil, errors.New(errors.KindNotFound, "device is destroyed")
	}

	start := clock.Now()

	if d.resolver != nil && d.resolver.GetModified() {
		if err := d.resolver.Apply(); err != nil {
			return nil, err
		}
		if d.deps.metrics != nil {
			d.deps.metrics.ResolverApplies.Inc()
		}
		d.publishLocked(events.ResolverApplied, "")
	}

	iface, err := d.deps.opener.Open(d.name, d.kind)
	if err != nil {
		return nil, err
	}

	if err := d.programLocked(iface.Name); err != nil {
		iface.Close()
		return nil, err
	}

	if d.resolver != nil {
		if idx, ierr := d.deps.nl.LinkIndex(iface.Name); ierr == nil {
			if berr := d.resolver.BindLink(idx); berr != nil {
				d.deps.logger.Warn("binding resolver to link failed", "device", d.handle, "error", berr)
			}
		}
	}

	d.iface = iface
	d.ifname = iface.Name
	d.state = StateActive
	d.modified = false

	if d.deps.metrics != nil {
		d.deps.metrics.EstablishDuration.Observe(clock.Since(start).Seconds())
	}
	d.deps.logger.Info("device established",
		"device", d.handle, "interface", d.ifname, "uid", c.UID,
		"addresses", len(d.addrs4)+len(d.addrs6), "routes", len(d.routes))
	d.publishLocked(events.DeviceEstablished, "")
	d.notifyLocked()

	return iface, nil
}

// programLocked pushes staged addresses, MTU, link state, then routes
// onto ifname. Routes need the link up first. Caller holds d.mu.
func (d *Device) programLocked(ifname string) error {
	if d.kind == tun.KindTap {
		// TAP devices come up with a random kernel MAC; pin a stable
		// locally-administered one so DHCP and bridge peers see the
		// same address across re-establishes.
		if err := d.deps.nl.SetMAC(ifname, netutil.VirtualMAC(ifname)); err != nil {
			return err
		}
	}
	for _, a := range d.addrs4 {
		if err := d.deps.nl.AddrAdd(ifname, a.Address, a.Prefix); err != nil {
			return err
		}
	}
	for _, a := range d.addrs6 {
		if err := d.deps.nl.AddrAdd(ifname, a.Address, a.Prefix); err != nil {
			return err
		}
	}
	if err := d.deps.nl.SetMTU(ifname, d.mtu); err != nil {
		return err
	}
	if err := d.deps.nl.LinkUp(ifname); err != nil {
		return err
	}
	for _, r := range d.routes {
		if err := d.deps.nl.RouteAdd(ifname, r.Network, r.Prefix, r.Gateway); err != nil {
			return err
		}
	}
	return nil
}

// Disable tears down the live interface and returns to Disabled; staged
// configuration survives for a future Establish. Disabling a device that
// is not active is a no-op success.
func (d *Device) Disable(c identity.Caller) error {
	if err := d.authorize(c, false); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateDestroyed {
		return errors.New(errors.KindNotFound, "device is destroyed")
	}
	if d.state != StateActive {
		return nil
	}

	d.teardownLocked()
	d.state = StateDisabled

	// This device may be the last dependent; give the host its DNS back.
	if d.resolver != nil && d.resolver.DeviceCount() <= 1 {
		d.restoreResolverLocked()
	}

	d.deps.logger.Info("device disabled", "device", d.handle, "uid", c.UID)
	d.publishLocked(events.DeviceDisabled, "")
	d.notifyLocked()
	return nil
}

// Destroy requires owner-tier authorization. It tears down a live
// interface, releases the resolver dependency (restoring the host
// configuration if this was the last device), unregisters the handle and
// retires the object. Nothing may target the handle afterwards.
func (d *Device) Destroy(c identity.Caller) error {
	if err := d.authorize(c, true); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateDestroyed {
		return errors.New(errors.KindNotFound, "device is destroyed")
	}

	if d.state == StateActive {
		d.teardownLocked()
	}

	if d.resolver != nil {
		if remaining := d.resolver.DecDeviceCount(); remaining == 0 {
			d.restoreResolverLocked()
		}
	}

	d.state = StateDestroyed
	d.deps.logger.Info("device destroyed", "device", d.handle, "uid", c.UID)
	d.publishLocked(events.DeviceDestroyed, "")

	if d.deps.onRemove != nil {
		d.deps.onRemove(d.handle)
	}
	d.notifyLocked()
	return nil
}

// teardownLocked reverses what Establish programmed. Failures are logged
// and skipped: the interface disappears with its descriptor regardless.
// Caller holds d.mu.
func (d *Device) teardownLocked() {
	for _, r := range d.routes {
		if err := d.deps.nl.RouteDel(d.ifname, r.Network, r.Prefix, r.Gateway); err != nil {
			d.deps.logger.Debug("route removal during teardown failed", "device", d.handle, "error", err)
		}
	}
	if err := d.deps.nl.LinkDown(d.ifname); err != nil {
		d.deps.logger.Debug("link down during teardown failed", "device", d.handle, "error", err)
	}
	if d.iface != nil {
		if err := d.iface.Close(); err != nil {
			d.deps.logger.Warn("closing interface descriptor failed", "device", d.handle, "error", err)
		}
		d.iface = nil
	}
	d.ifname = ""
}

// restoreResolverLocked attempts Restore and swallows failures at
// critical level: teardown of the device itself must still complete.
// Caller holds d.mu.
func (d *Device) restoreResolverLocked() {
	if err := d.resolver.Restore(); err != nil {
		d.deps.logger.Error("CRITICAL: restoring host DNS configuration failed",
			"device", d.handle, "error", err)
		return
	}
	if d.deps.metrics != nil {
		d.deps.metrics.ResolverRestores.Inc()
	}
	d.publishLocked(events.ResolverRestored, "")
}

func (d *Device) markModifiedLocked() {
	d.modified = true
	d.publishLocked(events.DeviceModified, "")
}

func (d *Device) publishLocked(t events.Type, detail string) {
	if d.deps.bus == nil {
		return
	}
	d.deps.bus.Publish(events.Event{
		Type:      t,
		Device:    d.handle,
		Name:      d.name,
		Interface: d.ifname,
		Detail:    detail,
		Timestamp: clock.Now(),
	})
}

// notifyLocked schedules the registry's gauge refresh. The refresh reads
// every device's state and so takes device locks; it must not run while
// this device's lock is held.
func (d *Device) notifyLocked() {
	if d.deps.onChange != nil {
		go d.deps.onChange()
	}
}
