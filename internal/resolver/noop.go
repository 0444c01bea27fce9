// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package resolver

// Noop discards DNS configuration changes. It is the backend for hosts
// where DNS is managed by something outside this daemon.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Commit(servers, search []string) error { return nil }

func (Noop) Restore() error { return nil }
