// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netutil holds small address parsing and formatting helpers shared
// by the device core and the control plane.
package netutil

import (
	"fmt"
	"net"
	"strings"

	"grimm.is/tundra/internal/errors"
)

// IsIPv4 reports whether s is a valid IPv4 address in dotted-quad form.
func IsIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && strings.Contains(s, ".")
}

// IsIPv6 reports whether s is a valid IPv6 address.
func IsIPv6(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() == nil && strings.Contains(s, ":")
}

// CheckAddress validates address/prefix for the given family.
// family is "ipv4" or "ipv6".
func CheckAddress(family, address string, prefix int) error {
	switch family {
	case "ipv4":
		if !IsIPv4(address) {
			return errors.Errorf(errors.KindValidation, "invalid IPv4 address %q", address)
		}
		if prefix < 0 || prefix > 32 {
			return errors.Errorf(errors.KindValidation, "invalid IPv4 prefix length %d", prefix)
		}
	case "ipv6":
		if !IsIPv6(address) {
			return errors.Errorf(errors.KindValidation, "invalid IPv6 address %q", address)
		}
		if prefix < 0 || prefix > 128 {
			return errors.Errorf(errors.KindValidation, "invalid IPv6 prefix length %d", prefix)
		}
	default:
		return errors.Errorf(errors.KindValidation, "unknown address family %q", family)
	}
	return nil
}

// CheckGateway validates a gateway address of either family.
func CheckGateway(gateway string) error {
	if net.ParseIP(gateway) == nil {
		return errors.Errorf(errors.KindValidation, "invalid gateway address %q", gateway)
	}
	return nil
}

// FormatCIDR renders an address and prefix as "address/prefix".
func FormatCIDR(address string, prefix int) string {
	return fmt.Sprintf("%s/%d", address, prefix)
}

// FormatRoute renders a route as "network/prefix=>gateway".
func FormatRoute(network string, prefix int, gateway string) string {
	return fmt.Sprintf("%s/%d=>%s", network, prefix, gateway)
}

// ParseCIDR splits "address/prefix" back into its parts.
func ParseCIDR(s string) (string, int, error) {
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return "", 0, errors.Errorf(errors.KindValidation, "missing prefix in %q", s)
	}
	address := s[:idx]
	var prefix int
	if _, err := fmt.Sscanf(s[idx+1:], "%d", &prefix); err != nil {
		return "", 0, errors.Errorf(errors.KindValidation, "invalid prefix in %q", s)
	}
	if net.ParseIP(address) == nil {
		return "", 0, errors.Errorf(errors.KindValidation, "invalid address in %q", s)
	}
	return address, prefix, nil
}
