// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netops programs addresses, routes, MTU and link state onto host
// interfaces. The Netlinker interface is the seam between the device core
// and the kernel; the production implementation drives rtnetlink, tests
// substitute a recording fake.
package netops

// Netlinker is the privileged interface-programming surface the device
// core depends on. All methods are synchronous and return on the first
// failure without rolling back earlier calls.
type Netlinker interface {
	// AddrAdd assigns address/prefix to the interface.
	AddrAdd(ifname, address string, prefix int) error
	// AddrDel removes address/prefix from the interface.
	AddrDel(ifname, address string, prefix int) error
	// RouteAdd installs a route to network/prefix via gateway over the
	// interface.
	RouteAdd(ifname, network string, prefix int, gateway string) error
	// RouteDel removes the route.
	RouteDel(ifname, network string, prefix int, gateway string) error
	// SetMTU changes the interface MTU.
	SetMTU(ifname string, mtu int) error
	// SetMAC assigns a hardware address to the interface.
	SetMAC(ifname string, mac []byte) error
	// LinkUp brings the interface up.
	LinkUp(ifname string) error
	// LinkDown takes the interface down.
	LinkDown(ifname string) error
	// LinkIndex returns the kernel interface index.
	LinkIndex(ifname string) (int, error)
}
