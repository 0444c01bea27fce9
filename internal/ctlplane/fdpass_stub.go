// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package ctlplane

import (
	"net"
	"os"

	"grimm.is/tundra/internal/errors"
)

func sendFD(conn *net.UnixConn, fd int) error {
	return errors.New(errors.KindSystem, "descriptor passing is only supported on linux")
}

func recvFD(conn *net.UnixConn, name string) (*os.File, error) {
	return nil, errors.New(errors.KindSystem, "descriptor passing is only supported on linux")
}
