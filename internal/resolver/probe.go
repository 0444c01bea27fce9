// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package resolver

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"

	"grimm.is/tundra/internal/errors"
)

// Probe sends a root NS query directly to the given DNS server and
// returns the round-trip time. It is a diagnostic used by health checks
// and verbose status output; it never sits on the Establish path.
func Probe(ctx context.Context, server string) (time.Duration, error) {
	if net.ParseIP(server) == nil {
		return 0, errors.Errorf(errors.KindValidation, "invalid DNS server address %q", server)
	}

	m := new(dns.Msg)
	m.SetQuestion(".", dns.TypeNS)
	m.RecursionDesired = false

	c := &dns.Client{Timeout: 3 * time.Second}
	_, rtt, err := c.ExchangeContext(ctx, m, net.JoinHostPort(server, "53"))
	if err != nil {
		return 0, errors.Wrapf(err, errors.KindUnavailable, "DNS server %s not answering", server)
	}
	return rtt, nil
}
