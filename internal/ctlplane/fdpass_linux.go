// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package ctlplane

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"grimm.is/tundra/internal/errors"
)

// sendFD transfers fd over the connection as SCM_RIGHTS ancillary data
// attached to a single marker byte.
func sendFD(conn *net.UnixConn, fd int) error {
	rights := unix.UnixRights(fd)
	if _, _, err := conn.WriteMsgUnix([]byte{0}, rights, nil); err != nil {
		return errors.Wrap(err, errors.KindSystem, "sending interface descriptor")
	}
	return nil
}

// recvFD receives one descriptor sent by sendFD and wraps it in an
// *os.File named after the interface.
func recvFD(conn *net.UnixConn, name string) (*os.File, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))

	_, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "receiving interface descriptor")
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "parsing control message")
	}
	if len(msgs) != 1 {
		return nil, errors.Errorf(errors.KindInternal, "expected one control message, got %d", len(msgs))
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "parsing descriptor rights")
	}
	if len(fds) != 1 {
		return nil, errors.Errorf(errors.KindInternal, "expected one descriptor, got %d", len(fds))
	}

	unix.CloseOnExec(fds[0])
	return os.NewFile(uintptr(fds[0]), name), nil
}
