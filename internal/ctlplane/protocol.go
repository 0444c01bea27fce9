// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctlplane is the control protocol between VPN session processes
// and the daemon: length-prefixed JSON frames over a Unix stream socket,
// caller identity from SO_PEERCRED, and SCM_RIGHTS for handing the
// interface descriptor out on establish.
package ctlplane

import (
	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/netcfg"
)

// Op enumerates every control operation. Dispatch is an exhaustive
// switch: an op outside this set is a validation error, never a
// fallthrough.
type Op string

const (
	OpCreateDevice      Op = "create-device"
	OpListDevices       Op = "list-devices"
	OpGetDevice         Op = "get-device"
	OpAddIPv4Address    Op = "add-ipv4-address"
	OpRemoveIPv4Address Op = "remove-ipv4-address"
	OpAddIPv6Address    Op = "add-ipv6-address"
	OpRemoveIPv6Address Op = "remove-ipv6-address"
	OpAddRoutes         Op = "add-routes"
	OpRemoveRoutes      Op = "remove-routes"
	OpAddDNS            Op = "add-dns"
	OpRemoveDNS         Op = "remove-dns"
	OpAddDNSSearch      Op = "add-dns-search"
	OpRemoveDNSSearch   Op = "remove-dns-search"
	OpSetMTU            Op = "set-mtu"
	OpSetLogLevel       Op = "set-log-level"
	OpEstablish         Op = "establish"
	OpDisable           Op = "disable"
	OpDestroy           Op = "destroy"
	OpStatus            Op = "status"
)

// Ops lists every operation, for validation and exhaustiveness tests.
var Ops = []Op{
	OpCreateDevice, OpListDevices, OpGetDevice,
	OpAddIPv4Address, OpRemoveIPv4Address,
	OpAddIPv6Address, OpRemoveIPv6Address,
	OpAddRoutes, OpRemoveRoutes,
	OpAddDNS, OpRemoveDNS,
	OpAddDNSSearch, OpRemoveDNSSearch,
	OpSetMTU, OpSetLogLevel,
	OpEstablish, OpDisable, OpDestroy,
	OpStatus,
}

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	for _, known := range Ops {
		if o == known {
			return true
		}
	}
	return false
}

// NeedsHandle reports whether the operation targets an existing device.
func (o Op) NeedsHandle() bool {
	switch o {
	case OpCreateDevice, OpListDevices, OpStatus:
		return false
	}
	return true
}

// Request is one control frame from client to server.
type Request struct {
	Op       Op              `json:"op"`
	Handle   string          `json:"handle,omitempty"`
	Name     string          `json:"name,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	LogLevel *int            `json:"log_level,omitempty"`
	Address  string          `json:"address,omitempty"`
	Prefix   int             `json:"prefix,omitempty"`
	Targets  []netcfg.Target `json:"targets,omitempty"`
	Gateway  string          `json:"gateway,omitempty"`
	Servers  []string        `json:"servers,omitempty"`
	Domains  []string        `json:"domains,omitempty"`
	MTU      int             `json:"mtu,omitempty"`
}

// Response is one control frame from server to client. When FDFollows is
// set the server sends one follow-up byte carrying the interface
// descriptor as SCM_RIGHTS ancillary data; the descriptor is never
// encoded in the payload itself.
type Response struct {
	OK        bool                `json:"ok"`
	Error     *WireError          `json:"error,omitempty"`
	Handle    string              `json:"handle,omitempty"`
	Interface string              `json:"interface,omitempty"`
	FDFollows bool                `json:"fd_follows,omitempty"`
	Device    *netcfg.Properties  `json:"device,omitempty"`
	Devices   []netcfg.Properties `json:"devices,omitempty"`
	Status    *Status             `json:"status,omitempty"`
}

// Status is the daemon summary returned by the status op.
type Status struct {
	Version         string         `json:"version"`
	PID             int            `json:"pid"`
	Devices         map[string]int `json:"devices"` // count by state
	ResolverBackend string         `json:"resolver_backend,omitempty"`
	ResolverRefs    int            `json:"resolver_refs"`
	Enforcing       bool           `json:"enforcing"`
}

// WireError carries a typed failure across the socket.
type WireError struct {
	Kind       string         `json:"kind"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// wireError converts an error for transmission. Unknown error kinds are
// flattened to an opaque internal failure so implementation detail never
// leaks to the peer.
func wireError(err error) *WireError {
	kind := errors.GetKind(err)
	msg := err.Error()
	var attrs map[string]any
	switch kind {
	case errors.KindUnknown, errors.KindInternal:
		kind = errors.KindInternal
		msg = "internal error"
	default:
		attrs = errors.GetAttributes(err)
		if len(attrs) == 0 {
			attrs = nil
		}
	}
	return &WireError{
		Kind:       kind.String(),
		Message:    msg,
		Attributes: attrs,
	}
}

// Err rehydrates the wire error as a typed error on the client side.
func (w *WireError) Err() error {
	err := errors.New(errors.ParseKind(w.Kind), w.Message)
	for k, v := range w.Attributes {
		err = errors.Attr(err, k, v)
	}
	return err
}
