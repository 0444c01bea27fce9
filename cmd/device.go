// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"grimm.is/tundra/internal/ctlplane"
	"grimm.is/tundra/internal/netcfg"
	"grimm.is/tundra/internal/netutil"
)

// RunDevice dispatches the device subcommands over the control socket.
func RunDevice(socketPath string, args []string) error {
	if len(args) == 0 {
		return deviceUsage()
	}

	client, err := ctlplane.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("cannot reach daemon: %w (is it running?)", err)
	}
	defer client.Close()

	sub, rest := args[0], args[1:]
	switch sub {
	case "create":
		return deviceCreate(client, rest)
	case "list":
		return deviceList(client)
	case "show":
		return deviceShow(client, rest)
	case "addr":
		return deviceAddr(client, rest)
	case "route":
		return deviceRoute(client, rest)
	case "dns":
		return deviceDNS(client, rest)
	case "search":
		return deviceSearch(client, rest)
	case "mtu":
		return deviceMTU(client, rest)
	case "log-level":
		return deviceLogLevel(client, rest)
	case "establish":
		return deviceEstablish(client, rest)
	case "disable":
		return deviceSimpleOp(client, ctlplane.OpDisable, "Disabled", rest)
	case "destroy":
		return deviceSimpleOp(client, ctlplane.OpDestroy, "Destroyed", rest)
	case "apply":
		return deviceApply(client, rest)
	default:
		Printer.Fprintf(os.Stderr, "Unknown device subcommand: %s\n\n", sub)
		return deviceUsage()
	}
}

func deviceUsage() error {
	Printer.Println(`Usage: device <subcommand>

  create -name NAME [-kind tun|tap] [-log-level N]
  list
  show HANDLE
  addr add|del HANDLE ADDRESS PREFIX
  route add|del HANDLE NETWORK/PREFIX... [-via GATEWAY]
  dns add|del HANDLE SERVER...
  search add|del HANDLE DOMAIN...
  mtu HANDLE MTU
  log-level HANDLE LEVEL
  establish HANDLE
  disable HANDLE
  destroy HANDLE
  apply -f FILE`)
	return nil
}

func deviceCreate(client *ctlplane.Client, args []string) error {
	fs := flag.NewFlagSet("device create", flag.ContinueOnError)
	name := fs.String("name", "", "interface name to request")
	kind := fs.String("kind", "tun", "device kind: tun or tap")
	logLevel := fs.Int("log-level", 0, "device log verbosity (0-6)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("device create: -name is required")
	}

	handle, err := client.CreateDevice(*name, *kind, *logLevel)
	if err != nil {
		return err
	}
	Printer.Println(handle)
	return nil
}

func deviceList(client *ctlplane.Client) error {
	devices, err := client.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		Printer.Println("No devices.")
		return nil
	}

	// Keep rows inside the terminal; pipes get full handles.
	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}

	Printer.Printf("%-36s  %-15s  %-5s  %-9s  %s\n", "HANDLE", "NAME", "KIND", "STATE", "INTERFACE")
	for _, d := range devices {
		line := fmt.Sprintf("%-36s  %-15s  %-5s  %-9s  %s", d.Handle, d.Name, d.Kind, d.State, d.Interface)
		if width > 0 && len(line) > width {
			line = line[:width]
		}
		Printer.Println(line)
	}
	return nil
}

func deviceShow(client *ctlplane.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("device show: expected HANDLE")
	}
	d, err := client.GetDevice(args[0])
	if err != nil {
		return err
	}

	Printer.Printf("Handle:     %s\n", d.Handle)
	Printer.Printf("Name:       %s (%s)\n", d.Name, d.Kind)
	Printer.Printf("State:      %s\n", d.State)
	if d.Interface != "" {
		Printer.Printf("Interface:  %s\n", d.Interface)
	}
	Printer.Printf("Owner:      uid %d\n", d.Owner)
	if len(d.ACL) > 0 {
		Printer.Printf("ACL:        %v\n", d.ACL)
	}
	Printer.Printf("MTU:        %d\n", d.MTU)
	Printer.Printf("Modified:   %v\n", d.Modified)
	printList := func(label string, items []string) {
		if len(items) > 0 {
			Printer.Printf("%-11s %s\n", label+":", strings.Join(items, ", "))
		}
	}
	printList("IPv4", d.IPv4Addresses)
	printList("IPv6", d.IPv6Addresses)
	printList("Routes", d.Routes)
	printList("DNS", d.DNSServers)
	printList("Search", d.DNSSearch)
	return nil
}

func deviceAddr(client *ctlplane.Client, args []string) error {
	if len(args) != 4 || (args[0] != "add" && args[0] != "del") {
		return fmt.Errorf("device addr: expected add|del HANDLE ADDRESS PREFIX")
	}
	prefix, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("device addr: bad prefix %q", args[3])
	}

	op := ctlplane.OpAddIPv4Address
	switch {
	case netutil.IsIPv6(args[2]) && args[0] == "add":
		op = ctlplane.OpAddIPv6Address
	case netutil.IsIPv6(args[2]):
		op = ctlplane.OpRemoveIPv6Address
	case args[0] == "del":
		op = ctlplane.OpRemoveIPv4Address
	}

	_, err = client.Do(ctlplane.Request{Op: op, Handle: args[1], Address: args[2], Prefix: prefix})
	return err
}

func deviceRoute(client *ctlplane.Client, args []string) error {
	fs := flag.NewFlagSet("device route", flag.ContinueOnError)
	gateway := fs.String("via", "", "gateway for the routes")

	if len(args) < 3 || (args[0] != "add" && args[0] != "del") {
		return fmt.Errorf("device route: expected add|del HANDLE NETWORK/PREFIX... [-via GATEWAY]")
	}
	action, handle := args[0], args[1]
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	var targets []netcfg.Target
	for _, arg := range fs.Args() {
		network, prefix, err := netutil.ParseCIDR(arg)
		if err != nil {
			return err
		}
		targets = append(targets, netcfg.Target{Network: network, Prefix: prefix})
	}
	if len(targets) == 0 {
		return fmt.Errorf("device route: no networks given")
	}

	op := ctlplane.OpAddRoutes
	if action == "del" {
		op = ctlplane.OpRemoveRoutes
	}
	_, err := client.Do(ctlplane.Request{Op: op, Handle: handle, Targets: targets, Gateway: *gateway})
	return err
}

func deviceDNS(client *ctlplane.Client, args []string) error {
	if len(args) < 3 || (args[0] != "add" && args[0] != "del") {
		return fmt.Errorf("device dns: expected add|del HANDLE SERVER...")
	}
	op := ctlplane.OpAddDNS
	if args[0] == "del" {
		op = ctlplane.OpRemoveDNS
	}
	_, err := client.Do(ctlplane.Request{Op: op, Handle: args[1], Servers: args[2:]})
	return err
}

func deviceSearch(client *ctlplane.Client, args []string) error {
	if len(args) < 3 || (args[0] != "add" && args[0] != "del") {
		return fmt.Errorf("device search: expected add|del HANDLE DOMAIN...")
	}
	op := ctlplane.OpAddDNSSearch
	if args[0] == "del" {
		op = ctlplane.OpRemoveDNSSearch
	}
	_, err := client.Do(ctlplane.Request{Op: op, Handle: args[1], Domains: args[2:]})
	return err
}

func deviceMTU(client *ctlplane.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("device mtu: expected HANDLE MTU")
	}
	mtu, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("device mtu: bad value %q", args[1])
	}
	_, err = client.Do(ctlplane.Request{Op: ctlplane.OpSetMTU, Handle: args[0], MTU: mtu})
	return err
}

func deviceLogLevel(client *ctlplane.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("device log-level: expected HANDLE LEVEL")
	}
	level, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("device log-level: bad value %q", args[1])
	}
	_, err = client.Do(ctlplane.Request{Op: ctlplane.OpSetLogLevel, Handle: args[0], LogLevel: &level})
	return err
}

// deviceEstablish activates the device from the CLI. The received
// descriptor is only useful to a process that keeps it open, so we
// report the interface name and close our copy.
func deviceEstablish(client *ctlplane.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("device establish: expected HANDLE")
	}
	ifname, file, err := client.Establish(args[0])
	if err != nil {
		return err
	}
	if file != nil {
		file.Close()
	}
	Printer.Printf("Established: %s\n", ifname)
	return nil
}

func deviceSimpleOp(client *ctlplane.Client, op ctlplane.Op, verb string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("device %s: expected HANDLE", op)
	}
	if _, err := client.Do(ctlplane.Request{Op: op, Handle: args[0]}); err != nil {
		return err
	}
	Printer.Printf("%s: %s\n", verb, args[0])
	return nil
}
