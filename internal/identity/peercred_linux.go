// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package identity

import (
	"net"

	"golang.org/x/sys/unix"

	"grimm.is/tundra/internal/errors"
)

// FromConn reads the peer credentials of a connected Unix socket via
// SO_PEERCRED. The kernel fills these in at connect time; they cannot be
// forged by the peer.
func FromConn(conn *net.UnixConn) (Caller, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Caller{}, errors.Wrap(err, errors.KindInternal, "accessing socket descriptor")
	}

	var cred *unix.Ucred
	var credErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return Caller{}, errors.Wrap(ctrlErr, errors.KindInternal, "reading peer credentials")
	}
	if credErr != nil {
		return Caller{}, errors.Wrap(credErr, errors.KindInternal, "reading peer credentials")
	}

	return Caller{
		UID: cred.Uid,
		GID: cred.Gid,
		PID: cred.Pid,
	}, nil
}
