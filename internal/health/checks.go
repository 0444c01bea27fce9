// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/beevik/ntp"
	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/tundra/internal/clock"
	"grimm.is/tundra/internal/resolver"
)

// maxClockSkew before the NTP check degrades.
const maxClockSkew = 5 * time.Second

// CheckTunDevice verifies the tun clone device exists and is a character
// device.
func CheckTunDevice(ctx context.Context) Check {
	started := clock.Now()
	info, err := os.Stat("/dev/net/tun")
	if err != nil {
		return result(StatusUnhealthy, fmt.Sprintf("/dev/net/tun unavailable: %v", err), started)
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return result(StatusUnhealthy, "/dev/net/tun is not a character device", started)
	}
	return result(StatusHealthy, "tun clone device present", started)
}

// CheckResolverProbe queries the given DNS server directly.
func CheckResolverProbe(server string) CheckFunc {
	return func(ctx context.Context) Check {
		started := clock.Now()
		if server == "" {
			return result(StatusHealthy, "no DNS probe configured", started)
		}
		rtt, err := resolver.Probe(ctx, server)
		if err != nil {
			return result(StatusDegraded, fmt.Sprintf("DNS server %s: %v", server, err), started)
		}
		return result(StatusHealthy, fmt.Sprintf("DNS server %s answered in %s", server, rtt), started)
	}
}

// CheckGateway pings the given address. Unprivileged UDP ping is used so
// the check works without raw socket capability.
func CheckGateway(address string) CheckFunc {
	return func(ctx context.Context) Check {
		started := clock.Now()
		if address == "" {
			return result(StatusHealthy, "no gateway probe configured", started)
		}

		pinger, err := probing.NewPinger(address)
		if err != nil {
			return result(StatusDegraded, fmt.Sprintf("gateway %s: %v", address, err), started)
		}
		pinger.Count = 1
		pinger.Timeout = 3 * time.Second
		if err := pinger.RunWithContext(ctx); err != nil {
			return result(StatusDegraded, fmt.Sprintf("gateway %s: %v", address, err), started)
		}
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return result(StatusDegraded, fmt.Sprintf("gateway %s did not answer", address), started)
		}
		return result(StatusHealthy, fmt.Sprintf("gateway %s answered in %s", address, stats.AvgRtt), started)
	}
}

// CheckClockSkew compares local time against an NTP server. Large skew
// breaks certificate validation in VPN clients, which is why the daemon
// watches it.
func CheckClockSkew(server string) CheckFunc {
	return func(ctx context.Context) Check {
		started := clock.Now()
		if server == "" {
			return result(StatusHealthy, "no NTP server configured", started)
		}
		resp, err := ntp.Query(server)
		if err != nil {
			return result(StatusDegraded, fmt.Sprintf("NTP %s: %v", server, err), started)
		}
		skew := resp.ClockOffset
		if skew < 0 {
			skew = -skew
		}
		if skew > maxClockSkew {
			return result(StatusDegraded, fmt.Sprintf("clock skewed %s from %s", resp.ClockOffset, server), started)
		}
		return result(StatusHealthy, fmt.Sprintf("clock within %s of %s", resp.ClockOffset, server), started)
	}
}

// CheckControlSocket dials the daemon's control socket.
func CheckControlSocket(path string) CheckFunc {
	return func(ctx context.Context) Check {
		started := clock.Now()
		conn, err := net.DialTimeout("unix", path, 2*time.Second)
		if err != nil {
			return result(StatusUnhealthy, fmt.Sprintf("control socket %s: %v", path, err), started)
		}
		conn.Close()
		return result(StatusHealthy, "control socket accepting connections", started)
	}
}
