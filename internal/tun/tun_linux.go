// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package tun

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"grimm.is/tundra/internal/errors"
)

const clonePath = "/dev/net/tun"

// ifreq layout for TUNSETIFF: 16 bytes of name followed by the flags
// word. The struct is larger on the kernel side; 40 bytes covers it.
type ifreq struct {
	Name  [unix.IFNAMSIZ]byte
	Flags uint16
	pad   [40 - unix.IFNAMSIZ - 2]byte
}

// Open creates a TUN or TAP interface named name (empty lets the kernel
// pick, e.g. tun0) and returns it with the descriptor attached. The
// interface disappears when the descriptor closes; persistence is the
// caller's concern and deliberately not set here.
func Open(name string, kind Kind) (*Interface, error) {
	if !kind.Valid() {
		return nil, errors.Errorf(errors.KindValidation, "unknown device kind %q", kind)
	}
	if len(name) >= unix.IFNAMSIZ {
		return nil, errors.Errorf(errors.KindValidation, "interface name %q too long", name)
	}

	fd, err := unix.Open(clonePath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindSystem, "opening %s", clonePath)
	}

	var req ifreq
	copy(req.Name[:], name)
	switch kind {
	case KindTap:
		req.Flags = unix.IFF_TAP | unix.IFF_NO_PI
	default:
		req.Flags = unix.IFF_TUN | unix.IFF_NO_PI
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.TUNSETIFF, uintptr(unsafe.Pointer(&req))); errno != 0 {
		unix.Close(fd)
		return nil, errors.Wrapf(errno, errors.KindSystem, "creating %s interface", kind)
	}

	// The kernel writes the name it actually assigned back into the
	// request (it expands templates like "tun%d" and resolves clashes).
	actual := nameOf(req.Name)

	return &Interface{
		Name: actual,
		Kind: kind,
		File: os.NewFile(uintptr(fd), clonePath),
	}, nil
}

func nameOf(raw [unix.IFNAMSIZ]byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw[:])
}
