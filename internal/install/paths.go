// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package install

import (
	"os"
	"path/filepath"

	"grimm.is/tundra/internal/brand"
)

// Exported variables for backward compatibility and convenience
var (
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultRunDir    string

	// Build-time path overrides (set via -ldflags)
	// These allow distributions to move the defaults, e.g. onto /opt.
	BuildDefaultConfigDir = ""
	BuildDefaultStateDir  = ""
	BuildDefaultLogDir    = ""
	BuildDefaultRunDir    = ""
)

func init() {
	b := brand.Get()

	// Apply build-time overrides if set, otherwise use JSON defaults
	if BuildDefaultConfigDir != "" {
		DefaultConfigDir = BuildDefaultConfigDir
	} else {
		DefaultConfigDir = b.DefaultConfigDir
	}

	if BuildDefaultStateDir != "" {
		DefaultStateDir = BuildDefaultStateDir
	} else {
		DefaultStateDir = b.DefaultStateDir
	}

	if BuildDefaultLogDir != "" {
		DefaultLogDir = BuildDefaultLogDir
	} else {
		DefaultLogDir = b.DefaultLogDir
	}

	if BuildDefaultRunDir != "" {
		DefaultRunDir = BuildDefaultRunDir
	} else {
		DefaultRunDir = b.DefaultRunDir
	}
}

// GetStateDir returns the state directory, checking env vars first.
// Priority: TUNDRA_STATE_DIR > TUNDRA_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// GetLogDir returns the log directory, checking env vars first.
// Priority: TUNDRA_LOG_DIR > TUNDRA_PREFIX/log > DefaultLogDir
func GetLogDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_LOG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "log")
	}
	return DefaultLogDir
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: TUNDRA_CONFIG_DIR > TUNDRA_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// GetConfigPath returns the full path to the daemon configuration file.
func GetConfigPath() string {
	if path := os.Getenv(brand.ConfigEnvPrefix + "_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(GetConfigDir(), brand.ConfigFileName)
}

// GetRunDir returns the runtime directory for sockets and PID files.
// Priority: TUNDRA_RUN_DIR > TUNDRA_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_RUN_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "run")
	}
	return DefaultRunDir
}

// GetSocketPath returns the full path to the control socket.
// The socket name includes the brand name for uniqueness.
// Returns: /run/tundra/tundra-netcfg.sock (or equivalent based on env/prefix)
func GetSocketPath() string {
	if path := os.Getenv(brand.ConfigEnvPrefix + "_CTL_SOCKET"); path != "" {
		return path
	}
	runDir := GetRunDir()
	// Use format: <lowerName>-<socketName> e.g., tundra-netcfg.sock
	return filepath.Join(runDir, brand.LowerName+"-"+brand.SocketName)
}

// GetPIDPath returns the full path to the daemon PID file.
func GetPIDPath() string {
	return filepath.Join(GetRunDir(), brand.LowerName+".pid")
}
