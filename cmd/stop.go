// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"grimm.is/tundra/internal/brand"
	"grimm.is/tundra/internal/install"
)

// RunStop stops the running daemon.
func RunStop() error {
	pidFile := install.GetPIDPath()

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no PID file found at %s (is daemon running?)", pidFile)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	Printer.Printf("Stopping %s (PID: %d)...\n", brand.Name, pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	// Wait for the PID file to disappear; the daemon removes it after
	// tearing down its devices and restoring the resolver.
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(pidFile); os.IsNotExist(err) {
			Printer.Println("Stopped.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	Printer.Println("Warning: PID file still exists. Process might be stuck or slow to shutdown.")
	return nil
}
