// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package resolvconf rewrites a resolv.conf-style file. The first Commit
// snapshots the existing file as the baseline; Restore writes that
// baseline back. Directives other than nameserver/search (options,
// sortlist, comments) are carried over from the baseline on every write.
package resolvconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"grimm.is/tundra/internal/errors"
)

// DefaultPath is the standard system resolver file.
const DefaultPath = "/etc/resolv.conf"

// Backend rewrites a resolv.conf file in place (atomically, via a temp
// file and rename in the same directory).
type Backend struct {
	mu   sync.Mutex
	path string

	baseline     []byte
	baselineSeen bool
	committed    bool
}

// New returns a Backend writing to path. An empty path means DefaultPath.
func New(path string) *Backend {
	if path == "" {
		path = DefaultPath
	}
	return &Backend{path: path}
}

// Name identifies the backend in logs and status output.
func (b *Backend) Name() string { return "resolvconf" }

// Path returns the file the backend manages.
func (b *Backend) Path() string { return b.path }

// Commit replaces the nameserver and search directives of the managed
// file with the given values, preserving all other directives from the
// pre-session baseline.
func (b *Backend) Commit(servers, search []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.baselineSeen {
		data, err := os.ReadFile(b.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return errors.Wrapf(err, errors.KindSystem, "reading %s", b.path)
			}
			data = nil
		}
		b.baseline = data
		b.baselineSeen = true
	}

	content := render(b.baseline, servers, search)
	if err := writeAtomic(b.path, content); err != nil {
		return err
	}
	b.committed = true
	return nil
}

// Restore writes the pre-session baseline back. Without a prior Commit it
// is a no-op; a baseline that did not exist removes the file again.
func (b *Backend) Restore() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.committed {
		return nil
	}

	if b.baseline == nil {
		if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.KindSystem, "removing %s", b.path)
		}
	} else {
		if err := writeAtomic(b.path, b.baseline); err != nil {
			return err
		}
	}
	b.committed = false
	return nil
}

// render builds the new file content: a generated header, the staged
// nameserver/search directives, then every baseline line that is not a
// nameserver or search directive.
func render(baseline []byte, servers, search []string) []byte {
	var sb strings.Builder
	sb.WriteString("# Generated by tundra. Do not edit; changes are overwritten.\n")
	for _, s := range servers {
		fmt.Fprintf(&sb, "nameserver %s\n", s)
	}
	if len(search) > 0 {
		fmt.Fprintf(&sb, "search %s\n", strings.Join(search, " "))
	}
	for _, line := range strings.Split(string(baseline), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "nameserver") || strings.HasPrefix(trimmed, "search") || strings.HasPrefix(trimmed, "domain") {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".resolv.conf.*")
	if err != nil {
		return errors.Wrapf(err, errors.KindSystem, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.KindSystem, "writing resolver configuration")
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.KindSystem, "setting resolver file mode")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.KindSystem, "closing resolver temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, errors.KindSystem, "replacing %s", path)
	}
	return nil
}
