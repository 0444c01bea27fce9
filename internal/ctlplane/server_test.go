// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package ctlplane

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tundra/internal/acl"
	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/logging"
	"grimm.is/tundra/internal/netcfg"
	"grimm.is/tundra/internal/netops"
	"grimm.is/tundra/internal/tun"
)

// startServer runs a full control plane over a real socket with fakes
// behind the device core. The opener hands out one end of a pipe so the
// establish fd transfer moves a real descriptor.
func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()

	logger := logging.New(logging.Config{Output: io.Discard, Level: logging.LevelError})
	policy := acl.NewPolicy([]uint32{uint32(os.Getuid())}, true)

	opener := tun.OpenerFunc(func(name string, kind tun.Kind) (*tun.Interface, error) {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		w.Close()
		return &tun.Interface{Name: "tun0", Kind: kind, File: r}, nil
	})

	reg := netcfg.NewRegistry(netcfg.RegistryConfig{
		Policy:  policy,
		Netlink: netops.NewFake(),
		Opener:  opener,
		Logger:  logger,
	})

	srv := NewServer(ServerConfig{
		SocketPath: filepath.Join(t.TempDir(), "netcfg.sock"),
		Registry:   reg,
		Policy:     policy,
		Logger:     logger,
		Version:    "test",
	})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-done
	})

	client, err := Dial(srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return srv, client
}

func TestEndToEndLifecycle(t *testing.T) {
	_, client := startServer(t)

	handle, err := client.CreateDevice("vpn0", "tun", 0)
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	_, err = client.Do(Request{Op: OpAddIPv4Address, Handle: handle, Address: "10.8.0.2", Prefix: 24})
	require.NoError(t, err)
	_, err = client.Do(Request{
		Op:      OpAddRoutes,
		Handle:  handle,
		Targets: []netcfg.Target{{Network: "10.0.0.0", Prefix: 8}},
		Gateway: "10.8.0.1",
	})
	require.NoError(t, err)

	props, err := client.GetDevice(handle)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.8.0.2/24"}, props.IPv4Addresses)
	assert.True(t, props.Modified)

	ifname, file, err := client.Establish(handle)
	require.NoError(t, err)
	assert.Equal(t, "tun0", ifname)
	require.NotNil(t, file, "descriptor must arrive out-of-band")
	file.Close()

	props, err = client.GetDevice(handle)
	require.NoError(t, err)
	assert.True(t, props.Active)

	// Establish twice is a conflict, delivered as a typed error.
	_, _, err = client.Establish(handle)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))

	_, err = client.Do(Request{Op: OpDisable, Handle: handle})
	require.NoError(t, err)
	_, err = client.Do(Request{Op: OpDestroy, Handle: handle})
	require.NoError(t, err)

	_, err = client.GetDevice(handle)
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestUnknownOperationRejected(t *testing.T) {
	_, client := startServer(t)
	_, err := client.Do(Request{Op: "frobnicate"})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestUnknownHandleRejected(t *testing.T) {
	_, client := startServer(t)
	_, err := client.Do(Request{Op: OpDisable, Handle: "nope"})
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestStatusSummary(t *testing.T) {
	_, client := startServer(t)

	_, err := client.CreateDevice("vpn0", "tun", 0)
	require.NoError(t, err)

	st, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, 1, st.Devices["staged"])
	assert.True(t, st.Enforcing)
}

func TestListDevices(t *testing.T) {
	_, client := startServer(t)

	for _, name := range []string{"vpn0", "vpn1"} {
		_, err := client.CreateDevice(name, "tun", 0)
		require.NoError(t, err)
	}
	devices, err := client.ListDevices()
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestValidationErrorOverWire(t *testing.T) {
	_, client := startServer(t)

	handle, err := client.CreateDevice("vpn0", "tun", 0)
	require.NoError(t, err)

	_, err = client.Do(Request{Op: OpSetMTU, Handle: handle, MTU: 12})
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	_, err = client.Do(Request{Op: OpAddDNS, Handle: handle, Servers: []string{"1.1.1.1"}})
	assert.Equal(t, errors.KindConfig, errors.GetKind(err), "no resolver bound in this fixture")
}
