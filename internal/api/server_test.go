// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tundra/internal/acl"
	"grimm.is/tundra/internal/health"
	"grimm.is/tundra/internal/identity"
	"grimm.is/tundra/internal/logging"
	"grimm.is/tundra/internal/netcfg"
	"grimm.is/tundra/internal/netops"
	"grimm.is/tundra/internal/tun"
)

func testServer(t *testing.T) (*Server, *netcfg.Registry) {
	t.Helper()
	logger := logging.New(logging.Config{Output: io.Discard, Level: logging.LevelError})
	reg := netcfg.NewRegistry(netcfg.RegistryConfig{
		Policy:  acl.NewPolicy(nil, true),
		Netlink: netops.NewFake(),
		Opener: tun.OpenerFunc(func(name string, kind tun.Kind) (*tun.Interface, error) {
			return &tun.Interface{Name: "tun0", Kind: kind}, nil
		}),
		Logger: logger,
	})

	runner := health.NewRunner()
	runner.Register("tun", health.CheckTunDevice)

	srv := NewServer(ServerConfig{
		Registry: reg,
		Health:   runner,
		Logger:   logger,
		Version:  "test",
	})
	return srv, reg
}

func TestDeviceEndpoints(t *testing.T) {
	srv, reg := testServer(t)
	root := identity.Caller{UID: 0}

	d, err := reg.Create(root, netcfg.CreateRequest{Name: "vpn0", Kind: tun.KindTun})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var list []netcfg.Properties
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "vpn0", list[0].Name)

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+d.Handle(), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var props netcfg.Properties
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &props))
	assert.Equal(t, d.Handle(), props.Handle)
}

func TestDeviceNotFound(t *testing.T) {
	srv, _ := testServer(t)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/devices/absent", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMutationsNotExposed(t *testing.T) {
	srv, reg := testServer(t)
	d, err := reg.Create(identity.Caller{UID: 0}, netcfg.CreateRequest{Name: "vpn0", Kind: tun.KindTun})
	require.NoError(t, err)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(method, "/api/v1/devices/"+d.Handle(), nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, "method %s must be rejected", method)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var report health.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Contains(t, report.Checks, "tun")
}

func TestVersionEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))
	assert.Contains(t, rr.Body.String(), "test")
}

func TestAuditWithoutStore(t *testing.T) {
	srv, _ := testServer(t)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
