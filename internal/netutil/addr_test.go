// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"testing"

	"grimm.is/tundra/internal/errors"
)

func TestCheckAddress(t *testing.T) {
	tests := []struct {
		name    string
		family  string
		address string
		prefix  int
		wantErr bool
	}{
		{"valid v4", "ipv4", "10.8.0.2", 24, false},
		{"valid v4 host", "ipv4", "192.168.1.1", 32, false},
		{"v4 bad prefix", "ipv4", "10.8.0.2", 33, true},
		{"v4 negative prefix", "ipv4", "10.8.0.2", -1, true},
		{"v4 not an address", "ipv4", "10.8.0", 24, true},
		{"v4 given v6", "ipv4", "fd00::1", 64, true},
		{"valid v6", "ipv6", "fd00:1234::1", 64, false},
		{"v6 bad prefix", "ipv6", "fd00::1", 129, true},
		{"v6 given v4", "ipv6", "10.0.0.1", 24, true},
		{"unknown family", "ipx", "10.0.0.1", 24, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAddress(tt.family, tt.address, tt.prefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckAddress(%s, %s, %d) error = %v, wantErr %v",
					tt.family, tt.address, tt.prefix, err, tt.wantErr)
			}
			if err != nil && errors.GetKind(err) != errors.KindValidation {
				t.Errorf("expected KindValidation, got %v", errors.GetKind(err))
			}
		})
	}
}

func TestFormatAndParseCIDR(t *testing.T) {
	s := FormatCIDR("10.8.0.2", 24)
	if s != "10.8.0.2/24" {
		t.Errorf("FormatCIDR = %q", s)
	}

	addr, prefix, err := ParseCIDR(s)
	if err != nil {
		t.Fatalf("ParseCIDR(%q) failed: %v", s, err)
	}
	if addr != "10.8.0.2" || prefix != 24 {
		t.Errorf("ParseCIDR(%q) = %q/%d", s, addr, prefix)
	}

	if _, _, err := ParseCIDR("10.8.0.2"); err == nil {
		t.Error("ParseCIDR should fail without a prefix")
	}
	if _, _, err := ParseCIDR("notanip/24"); err == nil {
		t.Error("ParseCIDR should fail on a bad address")
	}
}

func TestFormatRoute(t *testing.T) {
	if got := FormatRoute("0.0.0.0", 0, "10.8.0.1"); got != "0.0.0.0/0=>10.8.0.1" {
		t.Errorf("FormatRoute = %q", got)
	}
	if got := FormatRoute("fd00::", 8, "fd00::1"); got != "fd00::/8=>fd00::1" {
		t.Errorf("FormatRoute = %q", got)
	}
}

func TestCheckGateway(t *testing.T) {
	if err := CheckGateway("10.8.0.1"); err != nil {
		t.Errorf("valid v4 gateway rejected: %v", err)
	}
	if err := CheckGateway("fd00::1"); err != nil {
		t.Errorf("valid v6 gateway rejected: %v", err)
	}
	if err := CheckGateway("gateway"); err == nil {
		t.Error("invalid gateway accepted")
	}
}
