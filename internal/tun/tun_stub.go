// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package tun

import "grimm.is/tundra/internal/errors"

// Open is unsupported off Linux; the daemon only runs there. The stub
// keeps the tree building on development hosts.
func Open(name string, kind Kind) (*Interface, error) {
	return nil, errors.New(errors.KindSystem, "tun devices are only supported on linux")
}
