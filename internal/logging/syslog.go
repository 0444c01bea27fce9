// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"grimm.is/tundra/internal/brand"
	"grimm.is/tundra/internal/clock"
)

// SyslogConfig describes an optional remote syslog destination.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	Host     string `hcl:"host,optional" json:"host"`
	Port     int    `hcl:"port,optional" json:"port"`
	Protocol string `hcl:"protocol,optional" json:"protocol"`
	Tag      string `hcl:"tag,optional" json:"tag"`
	Facility int    `hcl:"facility,optional" json:"facility"`
}

// DefaultSyslogConfig returns the disabled default syslog configuration.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      brand.LowerName,
		Facility: 1,
	}
}

// SyslogWriter forwards each written line to a remote syslog server in
// RFC 3164 framing. It implements io.Writer so it can back a Logger.
type SyslogWriter struct {
	mu       sync.Mutex
	conn     net.Conn
	tag      string
	facility int
	hostname string
}

// NewSyslogWriter connects to the configured syslog server. Zero-value
// fields are normalized to the defaults from DefaultSyslogConfig.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = brand.LowerName
	}
	if cfg.Facility == 0 {
		cfg.Facility = 1
	}
	if cfg.Protocol != "udp" && cfg.Protocol != "tcp" {
		return nil, fmt.Errorf("syslog protocol must be udp or tcp, got %q", cfg.Protocol)
	}

	conn, err := net.Dial(cfg.Protocol, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("syslog dial failed: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return &SyslogWriter{
		conn:     conn,
		tag:      cfg.Tag,
		facility: cfg.Facility,
		hostname: hostname,
	}, nil
}

// Write sends p as a single syslog message at informational severity.
func (w *SyslogWriter) Write(p []byte) (int, error) {
	// PRI = facility*8 + severity; severity 6 is informational.
	pri := w.facility*8 + 6
	msg := strings.TrimRight(string(p), "\n")
	ts := clock.Now().Format("Jan  2 15:04:05")

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.conn, "<%d>%s %s %s: %s\n", pri, ts, w.hostname, w.tag, msg)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying connection.
func (w *SyslogWriter) Close() error {
	return w.conn.Close()
}
