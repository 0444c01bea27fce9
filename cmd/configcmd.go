// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"

	"grimm.is/tundra/internal/config"
	"grimm.is/tundra/internal/install"
)

// RunConfigInit writes the default configuration file. It refuses to
// overwrite an existing one.
func RunConfigInit(path string) error {
	if path == "" {
		path = install.GetConfigPath()
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	Printer.Printf("Wrote default configuration to %s\n", path)
	return nil
}

// RunConfigValidate loads and validates the configuration file.
func RunConfigValidate(path string) error {
	if path == "" {
		path = install.GetConfigPath()
	}
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	Printer.Printf("Configuration is valid: %s\n", path)
	return nil
}

// RunConfigShow prints the effective configuration, defaults filled in.
func RunConfigShow(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	Printer.Printf("%s", cfg.Render())
	return nil
}

// RunConfigDiff shows what a normalized rewrite of the file would
// change.
func RunConfigDiff(path string) error {
	if path == "" {
		path = install.GetConfigPath()
	}
	diff, err := config.Diff(path)
	if err != nil {
		return err
	}
	if diff == "" {
		Printer.Println("Configuration is already normalized.")
		return nil
	}
	Printer.Printf("%s", diff)
	return nil
}
