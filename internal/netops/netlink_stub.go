// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package netops

import "grimm.is/tundra/internal/errors"

// RealNetlinker is a stub off Linux so the tree builds on development
// hosts; every call fails.
type RealNetlinker struct{}

// New returns the stub Netlinker.
func New() Netlinker {
	return &RealNetlinker{}
}

func errUnsupported() error {
	return errors.New(errors.KindSystem, "netlink is only supported on linux")
}

func (r *RealNetlinker) AddrAdd(ifname, address string, prefix int) error { return errUnsupported() }
func (r *RealNetlinker) AddrDel(ifname, address string, prefix int) error { return errUnsupported() }
func (r *RealNetlinker) RouteAdd(ifname, network string, prefix int, gateway string) error {
	return errUnsupported()
}
func (r *RealNetlinker) RouteDel(ifname, network string, prefix int, gateway string) error {
	return errUnsupported()
}
func (r *RealNetlinker) SetMTU(ifname string, mtu int) error    { return errUnsupported() }
func (r *RealNetlinker) SetMAC(ifname string, mac []byte) error { return errUnsupported() }
func (r *RealNetlinker) LinkUp(ifname string) error             { return errUnsupported() }
func (r *RealNetlinker) LinkDown(ifname string) error           { return errUnsupported() }
func (r *RealNetlinker) LinkIndex(ifname string) (int, error) {
	return 0, errUnsupported()
}
