// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package netops

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/netutil"
)

// RealNetlinker programs the kernel through rtnetlink.
type RealNetlinker struct{}

// New returns the production Netlinker.
func New() Netlinker {
	return &RealNetlinker{}
}

func (r *RealNetlinker) link(ifname string) (netlink.Link, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindSystem, "looking up interface %s", ifname)
	}
	return link, nil
}

func (r *RealNetlinker) AddrAdd(ifname, address string, prefix int) error {
	link, err := r.link(ifname)
	if err != nil {
		return err
	}
	addr, err := netlink.ParseAddr(fmt.Sprintf("%s/%d", address, prefix))
	if err != nil {
		return errors.Wrapf(err, errors.KindValidation, "parsing address %s/%d", address, prefix)
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "adding %s/%d to %s", address, prefix, ifname)
	}
	return nil
}

func (r *RealNetlinker) AddrDel(ifname, address string, prefix int) error {
	link, err := r.link(ifname)
	if err != nil {
		return err
	}
	addr, err := netlink.ParseAddr(fmt.Sprintf("%s/%d", address, prefix))
	if err != nil {
		return errors.Wrapf(err, errors.KindValidation, "parsing address %s/%d", address, prefix)
	}
	if err := netlink.AddrDel(link, addr); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "removing %s/%d from %s", address, prefix, ifname)
	}
	return nil
}

func (r *RealNetlinker) route(ifname, network string, prefix int, gateway string) (*netlink.Route, error) {
	link, err := r.link(ifname)
	if err != nil {
		return nil, err
	}
	_, dst, err := net.ParseCIDR(fmt.Sprintf("%s/%d", network, prefix))
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "parsing route target %s/%d", network, prefix)
	}
	gw := net.ParseIP(gateway)
	if gw == nil {
		return nil, errors.Errorf(errors.KindValidation, "invalid gateway %q", gateway)
	}
	return &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       dst,
		Gw:        gw,
	}, nil
}

func (r *RealNetlinker) RouteAdd(ifname, network string, prefix int, gateway string) error {
	route, err := r.route(ifname, network, prefix, gateway)
	if err != nil {
		return err
	}
	if err := netlink.RouteAdd(route); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "adding route %s/%d via %s", network, prefix, gateway)
	}
	return nil
}

func (r *RealNetlinker) RouteDel(ifname, network string, prefix int, gateway string) error {
	route, err := r.route(ifname, network, prefix, gateway)
	if err != nil {
		return err
	}
	if err := netlink.RouteDel(route); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "removing route %s/%d via %s", network, prefix, gateway)
	}
	return nil
}

func (r *RealNetlinker) SetMTU(ifname string, mtu int) error {
	link, err := r.link(ifname)
	if err != nil {
		return err
	}
	if err := netlink.LinkSetMTU(link, mtu); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "setting MTU %d on %s", mtu, ifname)
	}
	return nil
}

func (r *RealNetlinker) SetMAC(ifname string, mac []byte) error {
	link, err := r.link(ifname)
	if err != nil {
		return err
	}
	if err := netlink.LinkSetHardwareAddr(link, net.HardwareAddr(mac)); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "setting MAC %s on %s", netutil.FormatMAC(mac), ifname)
	}
	return nil
}

func (r *RealNetlinker) LinkUp(ifname string) error {
	link, err := r.link(ifname)
	if err != nil {
		return err
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "bringing up %s", ifname)
	}
	return nil
}

func (r *RealNetlinker) LinkDown(ifname string) error {
	link, err := r.link(ifname)
	if err != nil {
		return err
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return errors.Wrapf(err, errors.KindSystem, "taking down %s", ifname)
	}
	return nil
}

func (r *RealNetlinker) LinkIndex(ifname string) (int, error) {
	link, err := r.link(ifname)
	if err != nil {
		return 0, err
	}
	return link.Attrs().Index, nil
}
