// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netops

import (
	"fmt"
	"sync"

	"grimm.is/tundra/internal/netutil"
)

// Fake records every programming call for assertions and can be told to
// fail specific operations. It backs the device core tests, which must
// run without privileges.
type Fake struct {
	mu    sync.Mutex
	Calls []string
	// Fail maps an operation name (AddrAdd, RouteAdd, SetMTU, SetMAC,
	// LinkUp, LinkDown, AddrDel, RouteDel, LinkIndex) to the error it
	// returns.
	Fail map[string]error
	// Index is what LinkIndex reports; defaults to 1.
	Index int
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{Fail: make(map[string]error), Index: 1}
}

func (f *Fake) record(op, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op+" "+detail)
	return f.Fail[op]
}

// CallLog returns a copy of the recorded calls.
func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *Fake) AddrAdd(ifname, address string, prefix int) error {
	return f.record("AddrAdd", fmt.Sprintf("%s %s/%d", ifname, address, prefix))
}

func (f *Fake) AddrDel(ifname, address string, prefix int) error {
	return f.record("AddrDel", fmt.Sprintf("%s %s/%d", ifname, address, prefix))
}

func (f *Fake) RouteAdd(ifname, network string, prefix int, gateway string) error {
	return f.record("RouteAdd", fmt.Sprintf("%s %s/%d via %s", ifname, network, prefix, gateway))
}

func (f *Fake) RouteDel(ifname, network string, prefix int, gateway string) error {
	return f.record("RouteDel", fmt.Sprintf("%s %s/%d via %s", ifname, network, prefix, gateway))
}

func (f *Fake) SetMTU(ifname string, mtu int) error {
	return f.record("SetMTU", fmt.Sprintf("%s %d", ifname, mtu))
}

func (f *Fake) SetMAC(ifname string, mac []byte) error {
	return f.record("SetMAC", fmt.Sprintf("%s %s", ifname, netutil.FormatMAC(mac)))
}

func (f *Fake) LinkUp(ifname string) error {
	return f.record("LinkUp", ifname)
}

func (f *Fake) LinkDown(ifname string) error {
	return f.record("LinkDown", ifname)
}

func (f *Fake) LinkIndex(ifname string) (int, error) {
	if err := f.record("LinkIndex", ifname); err != nil {
		return 0, err
	}
	return f.Index, nil
}
