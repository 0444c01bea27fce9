// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates the daemon's HCL configuration.
package config

import (
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/tundra/internal/brand"
	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/install"
	"grimm.is/tundra/internal/netcfg"
	"grimm.is/tundra/internal/netutil"
)

// Config is the root of the daemon configuration.
type Config struct {
	Daemon   *DaemonConfig   `hcl:"daemon,block"`
	Resolver *ResolverConfig `hcl:"resolver,block"`
	API      *APIConfig      `hcl:"api,block"`
	Audit    *AuditConfig    `hcl:"audit,block"`
	Health   *HealthConfig   `hcl:"health,block"`
}

// DaemonConfig controls the control socket and process-wide behavior.
type DaemonConfig struct {
	SocketPath     string   `hcl:"socket_path,optional"`
	SocketMode     string   `hcl:"socket_mode,optional"` // octal, e.g. "0600"
	AuthorizedUIDs []uint32 `hcl:"authorized_uids,optional"`
	// EnforceCallerCheck gates the general authorization tier. Shipping
	// default is true; false exists for development hosts only.
	EnforceCallerCheck *bool  `hcl:"enforce_caller_check,optional"`
	DefaultMTU         int    `hcl:"default_mtu,optional"`
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"` // "text" or "json"
	LogFile            string `hcl:"log_file,optional"`
}

// ResolverConfig selects and tunes the DNS backend.
type ResolverConfig struct {
	Backend        string `hcl:"backend,optional"` // resolvconf, resolved, noop
	ResolvConfPath string `hcl:"resolv_conf_path,optional"`
}

// APIConfig controls the read-only diagnostics HTTP server.
type APIConfig struct {
	Enabled bool   `hcl:"enabled,optional"`
	Listen  string `hcl:"listen,optional"`
}

// AuditConfig controls the persistent audit journal.
type AuditConfig struct {
	Enabled bool   `hcl:"enabled,optional"`
	DBPath  string `hcl:"db_path,optional"`
}

// HealthConfig tunes the health checks.
type HealthConfig struct {
	GatewayProbe string `hcl:"gateway_probe,optional"` // address pinged for reachability
	NTPServer    string `hcl:"ntp_server,optional"`
	DNSProbe     string `hcl:"dns_probe,optional"` // DNS server probed directly
}

// Default returns the configuration the daemon runs with when no file
// exists.
func Default() *Config {
	enforce := true
	return &Config{
		Daemon: &DaemonConfig{
			SocketPath:         install.GetSocketPath(),
			SocketMode:         "0600",
			EnforceCallerCheck: &enforce,
			DefaultMTU:         netcfg.DefaultMTU,
			LogLevel:           "info",
			LogFormat:          "text",
		},
		Resolver: &ResolverConfig{
			Backend: "resolvconf",
		},
		API: &APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9890",
		},
		Audit: &AuditConfig{
			Enabled: false,
		},
		Health: &HealthConfig{
			NTPServer: "pool.ntp.org",
		},
	}
}

// Load reads and validates path. A missing file yields the defaults; a
// present but broken file is an error, never a silent fallback.
func Load(path string) (*Config, error) {
	if path == "" {
		path = install.GetConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	cfg := &Config{}
	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, errors.Wrapf(err, errors.KindConfig, "parsing %s", path)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields from Default.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Daemon == nil {
		c.Daemon = def.Daemon
	} else {
		d := c.Daemon
		if d.SocketPath == "" {
			d.SocketPath = def.Daemon.SocketPath
		}
		if d.SocketMode == "" {
			d.SocketMode = def.Daemon.SocketMode
		}
		if d.EnforceCallerCheck == nil {
			d.EnforceCallerCheck = def.Daemon.EnforceCallerCheck
		}
		if d.DefaultMTU == 0 {
			d.DefaultMTU = def.Daemon.DefaultMTU
		}
		if d.LogLevel == "" {
			d.LogLevel = def.Daemon.LogLevel
		}
		if d.LogFormat == "" {
			d.LogFormat = def.Daemon.LogFormat
		}
	}
	if c.Resolver == nil {
		c.Resolver = def.Resolver
	} else if c.Resolver.Backend == "" {
		c.Resolver.Backend = def.Resolver.Backend
	}
	if c.API == nil {
		c.API = def.API
	} else if c.API.Listen == "" {
		c.API.Listen = def.API.Listen
	}
	if c.Audit == nil {
		c.Audit = def.Audit
	}
	if c.Health == nil {
		c.Health = def.Health
	} else if c.Health.NTPServer == "" {
		c.Health.NTPServer = def.Health.NTPServer
	}
}

// Validate rejects structurally invalid configuration.
func (c *Config) Validate() error {
	d := c.Daemon
	if d.DefaultMTU < netcfg.MinMTU || d.DefaultMTU > netcfg.MaxMTU {
		return errors.Errorf(errors.KindValidation, "daemon.default_mtu %d outside valid range %d-%d",
			d.DefaultMTU, netcfg.MinMTU, netcfg.MaxMTU)
	}
	if d.LogFormat != "text" && d.LogFormat != "json" {
		return errors.Errorf(errors.KindValidation, "daemon.log_format %q must be \"text\" or \"json\"", d.LogFormat)
	}
	if _, err := parseMode(d.SocketMode); err != nil {
		return err
	}

	switch c.Resolver.Backend {
	case "resolvconf", "resolved", "noop":
	default:
		return errors.Errorf(errors.KindValidation, "resolver.backend %q must be resolvconf, resolved or noop", c.Resolver.Backend)
	}

	if c.Health.GatewayProbe != "" && !netutil.IsIPv4(c.Health.GatewayProbe) && !netutil.IsIPv6(c.Health.GatewayProbe) {
		return errors.Errorf(errors.KindValidation, "health.gateway_probe %q is not an IP address", c.Health.GatewayProbe)
	}
	if c.Health.DNSProbe != "" && !netutil.IsIPv4(c.Health.DNSProbe) && !netutil.IsIPv6(c.Health.DNSProbe) {
		return errors.Errorf(errors.KindValidation, "health.dns_probe %q is not an IP address", c.Health.DNSProbe)
	}

	if c.API.Enabled && c.API.Listen == "" {
		return errors.New(errors.KindValidation, "api.listen must be set when the API is enabled")
	}
	return nil
}

// SocketFileMode parses daemon.socket_mode into a file mode.
func (c *Config) SocketFileMode() os.FileMode {
	mode, err := parseMode(c.Daemon.SocketMode)
	if err != nil {
		return 0600
	}
	return mode
}

func parseMode(s string) (os.FileMode, error) {
	if s == "" {
		return 0600, nil
	}
	var mode uint32
	for _, r := range s {
		if r < '0' || r > '7' {
			return 0, errors.Errorf(errors.KindValidation, "daemon.socket_mode %q is not octal", s)
		}
		mode = mode*8 + uint32(r-'0')
	}
	if mode > 0777 {
		return 0, errors.Errorf(errors.KindValidation, "daemon.socket_mode %q out of range", s)
	}
	return os.FileMode(mode), nil
}

// AuditDBPath returns the configured audit database path or the default
// under the state directory.
func (c *Config) AuditDBPath() string {
	if c.Audit != nil && c.Audit.DBPath != "" {
		return c.Audit.DBPath
	}
	return install.GetStateDir() + "/" + brand.LowerName + "-audit.db"
}
