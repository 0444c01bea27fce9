// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/tundra/cmd"
	"grimm.is/tundra/internal/brand"
	"grimm.is/tundra/internal/install"
)

func usage() {
	fmt.Fprintf(os.Stderr, `%s - %s

Usage: %s <command> [options]

Daemon:
  start       Start the daemon in the background
  stop        Stop the running daemon
  daemon      Run the daemon in the foreground
  status      Show daemon and device summary

Devices:
  device      Manage devices (see '%s device' for subcommands)

Configuration:
  config init | validate | show | diff

Other:
  version     Print version information
`, brand.Name, brand.Description, brand.BinaryName, brand.BinaryName)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		fs := flag.NewFlagSet("start", flag.ExitOnError)
		configFile := fs.String("config", "", "configuration file")
		fs.Parse(os.Args[2:])
		err = cmd.RunStart(*configFile)

	case "stop":
		err = cmd.RunStop()

	case "daemon":
		fs := flag.NewFlagSet("daemon", flag.ExitOnError)
		configFile := fs.String("config", "", "configuration file")
		fs.Parse(os.Args[2:])
		err = cmd.RunDaemon(*configFile)

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		socket := fs.String("socket", install.GetSocketPath(), "control socket path")
		fs.Parse(os.Args[2:])
		err = cmd.RunStatus(*socket)

	case "device":
		fs := flag.NewFlagSet("device", flag.ExitOnError)
		socket := fs.String("socket", install.GetSocketPath(), "control socket path")
		fs.Parse(os.Args[2:])
		err = cmd.RunDevice(*socket, fs.Args())

	case "config":
		err = runConfig(os.Args[2:])

	case "version":
		err = cmd.RunVersion()

	case "help", "-h", "--help":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runConfig(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("config: expected init, validate, show or diff")
	}
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	path := fs.String("config", "", "configuration file")
	fs.Parse(args[1:])

	switch args[0] {
	case "init":
		return cmd.RunConfigInit(*path)
	case "validate":
		return cmd.RunConfigValidate(*path)
	case "show":
		return cmd.RunConfigShow(*path)
	case "diff":
		return cmd.RunConfigDiff(*path)
	default:
		return fmt.Errorf("config: unknown subcommand %q", args[0])
	}
}
