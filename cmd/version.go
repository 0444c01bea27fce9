// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"runtime"

	"grimm.is/tundra/internal/brand"
)

// RunVersion prints the version banner.
func RunVersion() error {
	Printer.Printf("%s %s\n", brand.Name, brand.Version)
	Printer.Printf("%s\n", brand.Description)
	Printer.Printf("go: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
