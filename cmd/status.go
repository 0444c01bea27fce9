// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"sort"

	"grimm.is/tundra/internal/brand"
	"grimm.is/tundra/internal/ctlplane"
)

// RunStatus queries the running daemon and prints a summary.
func RunStatus(socketPath string) error {
	client, err := ctlplane.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("cannot reach daemon: %w (is it running?)", err)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return err
	}

	Printer.Printf("%s %s (PID: %d)\n", brand.Name, status.Version, status.PID)
	Printer.Printf("Caller check: %s\n", enabledWord(status.Enforcing))
	if status.ResolverBackend != "" {
		Printer.Printf("Resolver: %s (%d device(s) attached)\n", status.ResolverBackend, status.ResolverRefs)
	}

	total := 0
	states := make([]string, 0, len(status.Devices))
	for state, n := range status.Devices {
		total += n
		states = append(states, state)
	}
	sort.Strings(states)
	Printer.Printf("Devices: %d\n", total)
	for _, state := range states {
		Printer.Printf("  %-9s %d\n", state, status.Devices[state])
	}
	return nil
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
