// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import "testing"

func TestVirtualMAC(t *testing.T) {
	a := VirtualMAC("tun0")
	b := VirtualMAC("tun0")
	if FormatMAC(a) != FormatMAC(b) {
		t.Errorf("VirtualMAC is not deterministic: %s vs %s", FormatMAC(a), FormatMAC(b))
	}
	if FormatMAC(a) == FormatMAC(VirtualMAC("tun1")) {
		t.Error("distinct interface names produced the same MAC")
	}

	if len(a) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(a))
	}
	// Locally administered, unicast.
	if a[0]&0x02 == 0 {
		t.Error("locally-administered bit not set")
	}
	if a[0]&0x01 != 0 {
		t.Error("multicast bit set")
	}
}

func TestFormatMAC(t *testing.T) {
	got := FormatMAC([]byte{0x02, 0x74, 0x64, 0xab, 0xcd, 0xef})
	if got != "02:74:64:ab:cd:ef" {
		t.Errorf("FormatMAC = %q", got)
	}
	if FormatMAC([]byte{0x02, 0x74}) != "" {
		t.Error("expected empty string for a short address")
	}
}
