// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netcfg

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tundra/internal/acl"
	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/identity"
	"grimm.is/tundra/internal/logging"
	"grimm.is/tundra/internal/netops"
	"grimm.is/tundra/internal/netutil"
	"grimm.is/tundra/internal/resolver"
	"grimm.is/tundra/internal/tun"
)

var (
	rootCaller    = identity.Caller{UID: 0, PID: 1}
	sessionCaller = identity.Caller{UID: 1000, PID: 100}
	rogueCaller   = identity.Caller{UID: 4242, PID: 666}
)

// fakeBackend counts commits and restores so the tests can assert the
// restore-exactly-once contract.
type fakeBackend struct {
	commits     int
	restores    int
	failRestore error
	servers     []string
	search      []string
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Commit(servers, search []string) error {
	b.commits++
	b.servers = append([]string(nil), servers...)
	b.search = append([]string(nil), search...)
	return nil
}

func (b *fakeBackend) Restore() error {
	if b.failRestore != nil {
		return b.failRestore
	}
	b.restores++
	b.servers = nil
	b.search = nil
	return nil
}

type fixture struct {
	reg     *Registry
	nl      *netops.Fake
	backend *fakeBackend
	res     *resolver.Settings
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Output: io.Discard, Level: logging.LevelError})
}

func newFixture(t *testing.T, withResolver bool) *fixture {
	t.Helper()

	f := &fixture{nl: netops.NewFake()}
	logger := quietLogger()
	if withResolver {
		f.backend = &fakeBackend{}
		f.res = resolver.New(f.backend, logger)
	}

	names := 0
	opener := tun.OpenerFunc(func(name string, kind tun.Kind) (*tun.Interface, error) {
		names++
		return &tun.Interface{Name: fmt.Sprintf("tun%d", names-1), Kind: kind}, nil
	})

	f.reg = NewRegistry(RegistryConfig{
		Policy:   acl.NewPolicy([]uint32{sessionCaller.UID}, true),
		Netlink:  f.nl,
		Opener:   opener,
		Resolver: f.res,
		Logger:   logger,
	})
	return f
}

func (f *fixture) create(t *testing.T, name string) *Device {
	t.Helper()
	d, err := f.reg.Create(sessionCaller, CreateRequest{Name: name, Kind: tun.KindTun})
	require.NoError(t, err)
	return d
}

func TestAddressStagingNetEffect(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	require.NoError(t, d.AddIPv4Address(sessionCaller, "10.8.0.2", 24))
	require.NoError(t, d.AddIPv4Address(sessionCaller, "10.8.0.3", 24))
	// Idempotent add of an existing entry.
	require.NoError(t, d.AddIPv4Address(sessionCaller, "10.8.0.2", 24))
	// Idempotent remove of a missing entry.
	require.NoError(t, d.RemoveIPv4Address(sessionCaller, "10.9.9.9", 24))
	require.NoError(t, d.RemoveIPv4Address(sessionCaller, "10.8.0.3", 24))

	p := d.Properties()
	assert.Equal(t, []string{"10.8.0.2/24"}, p.IPv4Addresses)
	assert.True(t, p.Modified)

	require.NoError(t, d.AddIPv6Address(sessionCaller, "fd00::2", 64))
	p = d.Properties()
	assert.Equal(t, []string{"fd00::2/64"}, p.IPv6Addresses)
}

func TestAddressValidation(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	err := d.AddIPv4Address(sessionCaller, "not-an-ip", 24)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	err = d.AddIPv4Address(sessionCaller, "10.8.0.2", 33)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	err = d.AddIPv6Address(sessionCaller, "10.8.0.2", 64)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestRouteBatchStaging(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	targets := []Target{
		{Network: "10.0.0.0", Prefix: 8},
		{Network: "172.16.0.0", Prefix: 12},
	}
	require.NoError(t, d.AddRoutes(sessionCaller, targets, "10.8.0.1"))

	p := d.Properties()
	assert.Equal(t, []string{"10.0.0.0/8=>10.8.0.1", "172.16.0.0/12=>10.8.0.1"}, p.Routes)

	// A batch with one invalid target stages nothing.
	bad := []Target{
		{Network: "192.168.0.0", Prefix: 16},
		{Network: "bogus", Prefix: 8},
	}
	err := d.AddRoutes(sessionCaller, bad, "10.8.0.1")
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	assert.Len(t, d.Properties().Routes, 2)

	require.NoError(t, d.RemoveRoutes(sessionCaller, targets[:1], "10.8.0.1"))
	assert.Equal(t, []string{"172.16.0.0/12=>10.8.0.1"}, d.Properties().Routes)
}

func TestMutationWhileActiveRejected(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")
	require.NoError(t, d.AddIPv4Address(sessionCaller, "10.8.0.2", 24))

	_, err := d.Establish(sessionCaller)
	require.NoError(t, err)

	err = d.AddIPv4Address(sessionCaller, "10.8.0.9", 24)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))
	err = d.AddRoutes(sessionCaller, []Target{{Network: "10.0.0.0", Prefix: 8}}, "10.8.0.1")
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))

	// Staged state is unchanged by the rejected calls.
	assert.Equal(t, []string{"10.8.0.2/24"}, d.Properties().IPv4Addresses)
}

func TestEstablishWhileActiveConflict(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	_, err := d.Establish(sessionCaller)
	require.NoError(t, err)
	assert.True(t, d.Properties().Active)

	_, err = d.Establish(sessionCaller)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))
}

func TestEstablishProgramsInterface(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")
	require.NoError(t, d.AddIPv4Address(sessionCaller, "10.8.0.2", 24))
	require.NoError(t, d.AddRoutes(sessionCaller, []Target{{Network: "10.0.0.0", Prefix: 8}}, "10.8.0.1"))

	iface, err := d.Establish(sessionCaller)
	require.NoError(t, err)
	assert.Equal(t, "tun0", iface.Name)
	assert.Equal(t, "tun0", d.Properties().Interface)
	assert.False(t, d.Properties().Modified, "established state matches staged state")

	calls := f.nl.CallLog()
	require.Equal(t, []string{
		"AddrAdd tun0 10.8.0.2/24",
		"SetMTU tun0 1500",
		"LinkUp tun0",
		"RouteAdd tun0 10.0.0.0/8 via 10.8.0.1",
	}, calls)
}

func TestEstablishTapPinsVirtualMAC(t *testing.T) {
	f := newFixture(t, false)
	d, err := f.reg.Create(sessionCaller, CreateRequest{Name: "bridge0", Kind: tun.KindTap})
	require.NoError(t, err)
	require.NoError(t, d.AddIPv4Address(sessionCaller, "10.8.0.2", 24))

	_, err = d.Establish(sessionCaller)
	require.NoError(t, err)

	calls := f.nl.CallLog()
	want := "SetMAC tun0 " + netutil.FormatMAC(netutil.VirtualMAC("tun0"))
	require.Equal(t, []string{
		want,
		"AddrAdd tun0 10.8.0.2/24",
		"SetMTU tun0 1500",
		"LinkUp tun0",
	}, calls)

	// Re-establishing programs a MAC for the new interface too.
	require.NoError(t, d.Disable(sessionCaller))
	_, err = d.Establish(sessionCaller)
	require.NoError(t, err)
	assert.Contains(t, f.nl.CallLog(), "SetMAC tun1 "+netutil.FormatMAC(netutil.VirtualMAC("tun1")))
}

func TestEstablishFailureLeavesDeviceStaged(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")
	f.nl.Fail["LinkUp"] = errors.New(errors.KindSystem, "link refused to come up")

	_, err := d.Establish(sessionCaller)
	assert.Equal(t, errors.KindSystem, errors.GetKind(err))
	assert.False(t, d.Properties().Active)

	// The device can retry once the failure clears.
	delete(f.nl.Fail, "LinkUp")
	_, err = d.Establish(sessionCaller)
	assert.NoError(t, err)
}

func TestDisableIsNoopSafe(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	// Disable before any Establish does nothing and succeeds.
	require.NoError(t, d.Disable(sessionCaller))
	assert.Equal(t, StateStaged, d.State())

	_, err := d.Establish(sessionCaller)
	require.NoError(t, err)
	require.NoError(t, d.Disable(sessionCaller))
	assert.Equal(t, StateDisabled, d.State())

	// Staged configuration survives for re-Establish.
	_, err = d.Establish(sessionCaller)
	require.NoError(t, err)
	assert.True(t, d.Properties().Active)
}

func TestDNSWithoutResolverConfigError(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	err := d.AddDNS(sessionCaller, []string{"1.1.1.1"})
	assert.Equal(t, errors.KindConfig, errors.GetKind(err))
	err = d.AddDNSSearch(sessionCaller, []string{"corp.example"})
	assert.Equal(t, errors.KindConfig, errors.GetKind(err))

	// Device state is untouched by the failed delegation.
	assert.Equal(t, StateStaged, d.State())
	assert.False(t, d.Properties().Modified)
}

func TestResolverRefcountDrain(t *testing.T) {
	f := newFixture(t, true)

	const n = 3
	devices := make([]*Device, n)
	for i := range devices {
		devices[i] = f.create(t, fmt.Sprintf("vpn%d", i))
	}
	assert.Equal(t, n, f.res.DeviceCount())

	require.NoError(t, devices[0].AddDNS(sessionCaller, []string{"1.1.1.1"}))
	_, err := devices[0].Establish(sessionCaller)
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.commits)

	// Destroy out of creation order; restore only at zero.
	for i, idx := range []int{1, 0, 2} {
		require.NoError(t, devices[idx].Destroy(sessionCaller))
		if i < n-1 {
			assert.Equal(t, 0, f.backend.restores, "restore ran with dependents remaining")
		}
	}
	assert.Equal(t, 0, f.res.DeviceCount())
	assert.Equal(t, 1, f.backend.restores, "restore must run exactly once")
}

func TestScenarioTwoDevicesSharedResolver(t *testing.T) {
	f := newFixture(t, true)

	d1 := f.create(t, "vpn0")
	assert.Equal(t, 1, f.res.DeviceCount())

	require.NoError(t, d1.AddDNS(sessionCaller, []string{"1.1.1.1"}))
	assert.True(t, d1.Properties().Modified, "resolver modification reflects in device property")

	_, err := d1.Establish(sessionCaller)
	require.NoError(t, err)
	assert.True(t, d1.Properties().Active)
	assert.Equal(t, []string{"1.1.1.1"}, f.backend.servers)

	d2 := f.create(t, "vpn1")
	assert.Equal(t, 2, f.res.DeviceCount())

	require.NoError(t, d2.Destroy(sessionCaller))
	assert.Equal(t, 1, f.res.DeviceCount())
	assert.Equal(t, 0, f.backend.restores, "dependents remain, no restore")

	require.NoError(t, d1.Destroy(sessionCaller))
	assert.Equal(t, 0, f.res.DeviceCount())
	assert.Equal(t, 1, f.backend.restores)
	assert.Nil(t, f.backend.servers, "baseline restored")

	_, err = f.reg.Get(d1.Handle())
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
	_, err = f.reg.Get(d2.Handle())
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestDisableByLastDependentRestoresResolver(t *testing.T) {
	f := newFixture(t, true)
	d := f.create(t, "vpn0")

	require.NoError(t, d.AddDNS(sessionCaller, []string{"9.9.9.9"}))
	_, err := d.Establish(sessionCaller)
	require.NoError(t, err)
	require.Equal(t, 1, f.backend.commits)

	require.NoError(t, d.Disable(sessionCaller))
	assert.Equal(t, 1, f.backend.restores, "last dependent disabling restores DNS")
}

func TestRestoreFailureDoesNotBlockDestroy(t *testing.T) {
	f := newFixture(t, true)
	d := f.create(t, "vpn0")

	require.NoError(t, d.AddDNS(sessionCaller, []string{"1.1.1.1"}))
	_, err := d.Establish(sessionCaller)
	require.NoError(t, err)

	f.backend.failRestore = errors.New(errors.KindSystem, "resolv.conf is read-only")
	require.NoError(t, d.Destroy(sessionCaller), "restore failure is swallowed, teardown completes")

	_, err = f.reg.Get(d.Handle())
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestDestroyUnauthorizedLeavesDeviceIntact(t *testing.T) {
	f := newFixture(t, true)
	d := f.create(t, "vpn0")
	require.NoError(t, d.AddIPv4Address(sessionCaller, "10.8.0.2", 24))

	// A caller passing the general tier but not owner/ACL.
	other := identity.Caller{UID: 1001, PID: 200}
	f.reg.policy.Allow(other.UID)

	err := d.Destroy(other)
	require.Equal(t, errors.KindPermission, errors.GetKind(err))
	assert.Equal(t, other.UID, errors.GetAttributes(err)["uid"])

	// Fully intact: still addressable, state unchanged, refcount unchanged.
	got, err := f.reg.Get(d.Handle())
	require.NoError(t, err)
	assert.Same(t, d, got)
	assert.Equal(t, StateStaged, d.State())
	assert.Equal(t, []string{"10.8.0.2/24"}, d.Properties().IPv4Addresses)
	assert.Equal(t, 1, f.res.DeviceCount())

	// Granting the uid owner-tier access unblocks Destroy.
	d.Grant().Allow(other.UID)
	require.NoError(t, d.Destroy(other))
}

func TestRogueCallerDeniedEverything(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	assert.Equal(t, errors.KindPermission, errors.GetKind(d.AddIPv4Address(rogueCaller, "10.8.0.2", 24)))
	_, err := d.Establish(rogueCaller)
	assert.Equal(t, errors.KindPermission, errors.GetKind(err))
	assert.Equal(t, errors.KindPermission, errors.GetKind(d.Disable(rogueCaller)))
	assert.Equal(t, errors.KindPermission, errors.GetKind(d.Destroy(rogueCaller)))

	_, err = f.reg.Create(rogueCaller, CreateRequest{Name: "evil0", Kind: tun.KindTun})
	assert.Equal(t, errors.KindPermission, errors.GetKind(err))
}

func TestDestroyWhileActiveTearsDown(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")
	require.NoError(t, d.AddRoutes(sessionCaller, []Target{{Network: "10.0.0.0", Prefix: 8}}, "10.8.0.1"))

	_, err := d.Establish(sessionCaller)
	require.NoError(t, err)
	require.NoError(t, d.Destroy(rootCaller))

	calls := f.nl.CallLog()
	assert.Contains(t, calls, "RouteDel tun0 10.0.0.0/8 via 10.8.0.1")
	assert.Contains(t, calls, "LinkDown tun0")
}

func TestOperationsAfterDestroyFail(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")
	require.NoError(t, d.Destroy(sessionCaller))

	assert.Equal(t, errors.KindNotFound, errors.GetKind(d.AddIPv4Address(sessionCaller, "10.8.0.2", 24)))
	_, err := d.Establish(sessionCaller)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
	assert.Equal(t, errors.KindNotFound, errors.GetKind(d.Disable(sessionCaller)))
	assert.Equal(t, errors.KindNotFound, errors.GetKind(d.Destroy(sessionCaller)))
}

func TestSetMTU(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	require.NoError(t, d.SetMTU(sessionCaller, 1400))
	assert.Equal(t, 1400, d.Properties().MTU)

	err := d.SetMTU(sessionCaller, 100)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	err = d.SetMTU(sessionCaller, 70000)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	assert.Equal(t, 1400, d.Properties().MTU, "rejected values are never applied")

	// While active the MTU is programmed immediately.
	_, err = d.Establish(sessionCaller)
	require.NoError(t, err)
	require.NoError(t, d.SetMTU(sessionCaller, 1380))
	assert.Contains(t, f.nl.CallLog(), "SetMTU tun0 1380")
}

func TestSetLogLevelBounds(t *testing.T) {
	f := newFixture(t, false)
	d := f.create(t, "vpn0")

	for lvl := 0; lvl <= MaxLogLevel; lvl++ {
		require.NoError(t, d.SetLogLevel(sessionCaller, lvl))
		assert.Equal(t, lvl, d.Properties().LogLevel)
	}

	err := d.SetLogLevel(sessionCaller, MaxLogLevel+1)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	err = d.SetLogLevel(sessionCaller, -1)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
	assert.Equal(t, MaxLogLevel, d.Properties().LogLevel, "out-of-range values are rejected, not clamped")
}
