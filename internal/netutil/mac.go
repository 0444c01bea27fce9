// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import "fmt"

// FormatMAC renders a 6-byte hardware address as colon-separated hex.
func FormatMAC(mac []byte) string {
	if len(mac) != 6 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// VirtualMAC derives a stable locally-administered unicast MAC from the
// interface name, so a layer-2 device keeps the same address across
// re-establishes. Prefix: 02:74:64 (locally administered, 't', 'd').
func VirtualMAC(ifaceName string) []byte {
	hash := uint32(0)
	for _, c := range ifaceName {
		hash = hash*31 + uint32(c)
	}
	return []byte{
		0x02, // Locally-administered, unicast
		0x74, // 't'
		0x64, // 'd'
		byte(hash >> 16),
		byte(hash >> 8),
		byte(hash),
	}
}
