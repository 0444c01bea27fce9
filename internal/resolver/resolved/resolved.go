// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package resolved configures DNS through systemd-resolved on the D-Bus
// system bus. Resolved scopes DNS per network link, so commits arriving
// before a device is established are queued and flushed once BindLink
// supplies the interface index.
package resolved

import (
	"net"
	"sync"

	"github.com/godbus/dbus/v5"

	"grimm.is/tundra/internal/errors"
)

const (
	busName     = "org.freedesktop.resolve1"
	objectPath  = "/org/freedesktop/resolve1"
	ifaceMgr    = "org.freedesktop.resolve1.Manager"
	callDNS     = ifaceMgr + ".SetLinkDNS"
	callDomains = ifaceMgr + ".SetLinkDomains"
	callRevert  = ifaceMgr + ".RevertLink"
)

// linkDNS mirrors resolve1's in(ia(iay)) address element.
type linkDNS struct {
	Family  int32
	Address []byte
}

// linkDomain mirrors resolve1's in(ia(sb)) domain element.
type linkDomain struct {
	Domain      string
	RoutingOnly bool
}

// Backend talks to org.freedesktop.resolve1.
type Backend struct {
	mu   sync.Mutex
	conn *dbus.Conn

	ifindex   int
	pending   bool
	servers   []string
	search    []string
	committed bool
}

// New connects to the system bus and verifies resolved is reachable.
func New() (*Backend, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "connecting to system bus")
	}
	return &Backend{conn: conn}, nil
}

// Name identifies the backend in logs and status output.
func (b *Backend) Name() string { return "systemd-resolved" }

// BindLink records the interface index of the established device and
// flushes any commit queued before the link existed.
func (b *Backend) BindLink(ifindex int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ifindex = ifindex
	if b.pending {
		if err := b.push(b.servers, b.search); err != nil {
			return err
		}
		b.pending = false
		b.committed = true
	}
	return nil
}

// Commit pushes the configuration to resolved, or queues it when no link
// is bound yet.
func (b *Backend) Commit(servers, search []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ifindex == 0 {
		b.servers = append([]string(nil), servers...)
		b.search = append([]string(nil), search...)
		b.pending = true
		return nil
	}

	if err := b.push(servers, search); err != nil {
		return err
	}
	b.committed = true
	return nil
}

// Restore reverts the link to resolved's own defaults and unbinds it.
// Without a committed or pending configuration it is a no-op.
func (b *Backend) Restore() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending {
		b.pending = false
		b.servers = nil
		b.search = nil
	}
	if !b.committed || b.ifindex == 0 {
		b.committed = false
		b.ifindex = 0
		return nil
	}

	obj := b.conn.Object(busName, dbus.ObjectPath(objectPath))
	if call := obj.Call(callRevert, 0, int32(b.ifindex)); call.Err != nil {
		return errors.Wrapf(call.Err, errors.KindSystem, "reverting resolved link %d", b.ifindex)
	}
	b.committed = false
	b.ifindex = 0
	return nil
}

// push issues SetLinkDNS and SetLinkDomains. Caller holds b.mu and has
// verified ifindex is set.
func (b *Backend) push(servers, search []string) error {
	addrs := make([]linkDNS, 0, len(servers))
	for _, s := range servers {
		ip := net.ParseIP(s)
		if ip == nil {
			return errors.Errorf(errors.KindValidation, "invalid DNS server address %q", s)
		}
		if v4 := ip.To4(); v4 != nil {
			addrs = append(addrs, linkDNS{Family: 2, Address: v4}) // AF_INET
		} else {
			addrs = append(addrs, linkDNS{Family: 10, Address: ip.To16()}) // AF_INET6
		}
	}
	domains := make([]linkDomain, 0, len(search))
	for _, d := range search {
		domains = append(domains, linkDomain{Domain: d})
	}

	obj := b.conn.Object(busName, dbus.ObjectPath(objectPath))
	if call := obj.Call(callDNS, 0, int32(b.ifindex), addrs); call.Err != nil {
		return errors.Wrapf(call.Err, errors.KindSystem, "setting DNS servers on resolved link %d", b.ifindex)
	}
	if call := obj.Call(callDomains, 0, int32(b.ifindex), domains); call.Err != nil {
		return errors.Wrapf(call.Err, errors.KindSystem, "setting search domains on resolved link %d", b.ifindex)
	}
	return nil
}
