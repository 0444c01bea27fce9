// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/tundra/internal/errors"
)

// Render serializes the configuration to HCL.
func (c *Config) Render() []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	if d := c.Daemon; d != nil {
		b := body.AppendNewBlock("daemon", nil).Body()
		b.SetAttributeValue("socket_path", cty.StringVal(d.SocketPath))
		b.SetAttributeValue("socket_mode", cty.StringVal(d.SocketMode))
		if len(d.AuthorizedUIDs) > 0 {
			uids := make([]cty.Value, len(d.AuthorizedUIDs))
			for i, uid := range d.AuthorizedUIDs {
				uids[i] = cty.NumberUIntVal(uint64(uid))
			}
			b.SetAttributeValue("authorized_uids", cty.ListVal(uids))
		}
		if d.EnforceCallerCheck != nil {
			b.SetAttributeValue("enforce_caller_check", cty.BoolVal(*d.EnforceCallerCheck))
		}
		b.SetAttributeValue("default_mtu", cty.NumberIntVal(int64(d.DefaultMTU)))
		b.SetAttributeValue("log_level", cty.StringVal(d.LogLevel))
		b.SetAttributeValue("log_format", cty.StringVal(d.LogFormat))
		if d.LogFile != "" {
			b.SetAttributeValue("log_file", cty.StringVal(d.LogFile))
		}
		body.AppendNewline()
	}

	if r := c.Resolver; r != nil {
		b := body.AppendNewBlock("resolver", nil).Body()
		b.SetAttributeValue("backend", cty.StringVal(r.Backend))
		if r.ResolvConfPath != "" {
			b.SetAttributeValue("resolv_conf_path", cty.StringVal(r.ResolvConfPath))
		}
		body.AppendNewline()
	}

	if a := c.API; a != nil {
		b := body.AppendNewBlock("api", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(a.Enabled))
		b.SetAttributeValue("listen", cty.StringVal(a.Listen))
		body.AppendNewline()
	}

	if a := c.Audit; a != nil {
		b := body.AppendNewBlock("audit", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(a.Enabled))
		if a.DBPath != "" {
			b.SetAttributeValue("db_path", cty.StringVal(a.DBPath))
		}
		body.AppendNewline()
	}

	if h := c.Health; h != nil {
		b := body.AppendNewBlock("health", nil).Body()
		if h.GatewayProbe != "" {
			b.SetAttributeValue("gateway_probe", cty.StringVal(h.GatewayProbe))
		}
		if h.DNSProbe != "" {
			b.SetAttributeValue("dns_probe", cty.StringVal(h.DNSProbe))
		}
		b.SetAttributeValue("ntp_server", cty.StringVal(h.NTPServer))
	}

	return f.Bytes()
}

// WriteDefault writes the default configuration to path, refusing to
// clobber an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf(errors.KindConflict, "%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "creating %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, Default().Render(), 0640); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "writing %s", path)
	}
	return nil
}

// Diff returns a unified diff between the on-disk file and the
// normalized rendering of its parsed form, showing what a rewrite would
// change. An empty string means no differences.
func Diff(path string) (string, error) {
	cfg, err := Load(path)
	if err != nil {
		return "", err
	}
	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		current = nil
	} else if err != nil {
		return "", errors.Wrapf(err, errors.KindSystem, "reading %s", path)
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(string(cfg.Render())),
		FromFile: path,
		ToFile:   path + " (normalized)",
		Context:  3,
	})
}
