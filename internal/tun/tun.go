// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tun creates virtual network interfaces through /dev/net/tun.
// The returned file descriptor is what Establish hands to the VPN client
// process over the control socket.
package tun

import "os"

// Kind selects the interface layer.
type Kind string

const (
	// KindTun is a layer-3 (IP) interface.
	KindTun Kind = "tun"
	// KindTap is a layer-2 (Ethernet) interface.
	KindTap Kind = "tap"
)

// Valid reports whether k names a supported interface kind.
func (k Kind) Valid() bool {
	return k == KindTun || k == KindTap
}

// Interface is a created virtual network interface. Name is the name the
// kernel actually assigned, which may differ from the requested one.
type Interface struct {
	Name string
	Kind Kind
	File *os.File
}

// Close releases the interface descriptor; the kernel removes a
// non-persistent interface once the last descriptor closes.
func (i *Interface) Close() error {
	if i.File == nil {
		return nil
	}
	err := i.File.Close()
	i.File = nil
	return err
}

// Opener creates interfaces. The production implementation is Open; tests
// substitute a fake.
type Opener interface {
	Open(name string, kind Kind) (*Interface, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(name string, kind Kind) (*Interface, error)

func (f OpenerFunc) Open(name string, kind Kind) (*Interface, error) {
	return f(name, kind)
}
