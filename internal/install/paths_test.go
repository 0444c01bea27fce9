// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package install

import (
	"path/filepath"
	"testing"

	"grimm.is/tundra/internal/brand"
)

func TestGetRunDirEnvOverride(t *testing.T) {
	t.Setenv(brand.ConfigEnvPrefix+"_RUN_DIR", "/tmp/tundra-test-run")
	if got := GetRunDir(); got != "/tmp/tundra-test-run" {
		t.Errorf("GetRunDir() = %q, want /tmp/tundra-test-run", got)
	}
}

func TestGetRunDirPrefix(t *testing.T) {
	t.Setenv(brand.ConfigEnvPrefix+"_RUN_DIR", "")
	t.Setenv(brand.ConfigEnvPrefix+"_PREFIX", "/opt/tundra")
	if got := GetRunDir(); got != filepath.Join("/opt/tundra", "run") {
		t.Errorf("GetRunDir() = %q, want /opt/tundra/run", got)
	}
}

func TestGetSocketPath(t *testing.T) {
	t.Setenv(brand.ConfigEnvPrefix+"_CTL_SOCKET", "")
	t.Setenv(brand.ConfigEnvPrefix+"_RUN_DIR", "/run/tundra")
	want := filepath.Join("/run/tundra", brand.LowerName+"-"+brand.SocketName)
	if got := GetSocketPath(); got != want {
		t.Errorf("GetSocketPath() = %q, want %q", got, want)
	}

	t.Setenv(brand.ConfigEnvPrefix+"_CTL_SOCKET", "/tmp/custom.sock")
	if got := GetSocketPath(); got != "/tmp/custom.sock" {
		t.Errorf("GetSocketPath() = %q, want /tmp/custom.sock", got)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(brand.ConfigEnvPrefix+"_CONFIG", "")
	t.Setenv(brand.ConfigEnvPrefix+"_CONFIG_DIR", "/etc/tundra-test")
	want := filepath.Join("/etc/tundra-test", brand.ConfigFileName)
	if got := GetConfigPath(); got != want {
		t.Errorf("GetConfigPath() = %q, want %q", got, want)
	}
}
