// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package identity

import (
	"net"

	"grimm.is/tundra/internal/errors"
)

// FromConn is unsupported off Linux; the daemon only runs there.
func FromConn(conn *net.UnixConn) (Caller, error) {
	return Caller{}, errors.New(errors.KindUnavailable, "peer credentials unsupported on this OS")
}
