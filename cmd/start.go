// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"grimm.is/tundra/internal/brand"
	"grimm.is/tundra/internal/config"
	"grimm.is/tundra/internal/install"
)

// RunStart starts the daemon in the background.
func RunStart(configFile string) error {
	// Pre-flight: validate config before forking so errors reach the
	// terminal instead of a log file in the background.
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Check for an existing PID file.
	pidFile := install.GetPIDPath()
	if data, err := os.ReadFile(pidFile); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("process already running (PID: %d)", pid)
				}
			}
		}
		Printer.Printf("Warning: Removing stale PID file %s\n", pidFile)
		os.Remove(pidFile)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"daemon"}
	if configFile != "" {
		args = append(args, "-config", configFile)
	}
	cmd := exec.Command(exe, args...)

	logFile := cfg.Daemon.LogFile
	if logFile == "" {
		logDir := install.GetLogDir()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile = filepath.Join(logDir, brand.LowerName+".log")
	}
	logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logF.Close()
	cmd.Stdout = logF
	cmd.Stderr = logF

	// Detach from the controlling terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	pid := cmd.Process.Pid
	Printer.Printf("Started %s (PID: %d)\n", brand.Name, pid)
	Printer.Printf("Logs: %s\n", logFile)

	// Wait briefly to catch immediate startup failures.
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		Printer.Fprintf(os.Stderr, "\nError: Daemon exited immediately.\n")
		if lines := tailLogFile(logFile, 10); len(lines) > 0 {
			Printer.Fprintf(os.Stderr, "Log output:\n")
			for _, line := range lines {
				if line != "" {
					Printer.Fprintf(os.Stderr, "  %s\n", line)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("daemon failed to start: %w", err)
		}
		return fmt.Errorf("daemon exited unexpectedly")

	case <-time.After(500 * time.Millisecond):
		if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
			return fmt.Errorf("daemon died during startup (check logs: %s)", logFile)
		}
		return nil
	}
}

// tailLogFile returns the last n lines of a log file.
func tailLogFile(path string, n int) []string {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(string(content), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
