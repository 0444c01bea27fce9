// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"os"
	"testing"
)

// RequireVM skips the test if the TUNDRA_VM_TEST environment variable is not set.
// This ensures that tests requiring real kernel capabilities (tun devices,
// netlink, resolv.conf) are only run in the proper environment.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("TUNDRA_VM_TEST") == "" {
		t.Skip("Skipping test: requires TUNDRA_VM_TEST environment")
	}
}

// RequireRoot skips the test unless it is running as uid 0. Establishing
// real interfaces and programming the resolver both need privilege.
func RequireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
