// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"grimm.is/tundra/internal/ctlplane"
	"grimm.is/tundra/internal/netcfg"
)

// devicePlan is a declarative device description applied in one pass:
// create, stage everything, optionally establish.
type devicePlan struct {
	Name      string        `yaml:"name"`
	Kind      string        `yaml:"kind"`
	LogLevel  int           `yaml:"log_level"`
	MTU       int           `yaml:"mtu"`
	Addresses []planAddress `yaml:"addresses"`
	Routes    []planRoute   `yaml:"routes"`
	DNS       planDNS       `yaml:"dns"`
	Establish bool          `yaml:"establish"`
}

type planAddress struct {
	Address string `yaml:"address"`
	Prefix  int    `yaml:"prefix"`
	IPv6    bool   `yaml:"ipv6"`
}

type planRoute struct {
	Network string `yaml:"network"`
	Prefix  int    `yaml:"prefix"`
	Gateway string `yaml:"gateway"`
}

type planDNS struct {
	Servers []string `yaml:"servers"`
	Search  []string `yaml:"search"`
}

func deviceApply(client *ctlplane.Client, args []string) error {
	fs := flag.NewFlagSet("device apply", flag.ContinueOnError)
	file := fs.String("f", "", "device plan file (YAML)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("device apply: -f FILE is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var plan devicePlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("parsing %s: %w", *file, err)
	}
	if plan.Kind == "" {
		plan.Kind = "tun"
	}

	handle, err := client.CreateDevice(plan.Name, plan.Kind, plan.LogLevel)
	if err != nil {
		return err
	}
	Printer.Printf("Created %s (%s)\n", plan.Name, handle)

	// Anything staged after a failure would belong to a half-built
	// device, so bail out and destroy it.
	if err := stagePlan(client, handle, plan); err != nil {
		if _, derr := client.Do(ctlplane.Request{Op: ctlplane.OpDestroy, Handle: handle}); derr != nil {
			Printer.Fprintf(os.Stderr, "Warning: cleanup failed: %v\n", derr)
		}
		return err
	}

	if plan.Establish {
		ifname, fd, err := client.Establish(handle)
		if err != nil {
			return err
		}
		if fd != nil {
			fd.Close()
		}
		Printer.Printf("Established: %s\n", ifname)
	}
	Printer.Println(handle)
	return nil
}

func stagePlan(client *ctlplane.Client, handle string, plan devicePlan) error {
	for _, a := range plan.Addresses {
		op := ctlplane.OpAddIPv4Address
		if a.IPv6 {
			op = ctlplane.OpAddIPv6Address
		}
		if _, err := client.Do(ctlplane.Request{Op: op, Handle: handle, Address: a.Address, Prefix: a.Prefix}); err != nil {
			return fmt.Errorf("staging address %s/%d: %w", a.Address, a.Prefix, err)
		}
	}

	// Group routes by gateway so each batch goes out in one request.
	byGateway := make(map[string][]netcfg.Target)
	for _, r := range plan.Routes {
		byGateway[r.Gateway] = append(byGateway[r.Gateway], netcfg.Target{Network: r.Network, Prefix: r.Prefix})
	}
	for gateway, targets := range byGateway {
		if _, err := client.Do(ctlplane.Request{Op: ctlplane.OpAddRoutes, Handle: handle, Targets: targets, Gateway: gateway}); err != nil {
			return fmt.Errorf("staging routes via %q: %w", gateway, err)
		}
	}

	if len(plan.DNS.Servers) > 0 {
		if _, err := client.Do(ctlplane.Request{Op: ctlplane.OpAddDNS, Handle: handle, Servers: plan.DNS.Servers}); err != nil {
			return fmt.Errorf("staging DNS servers: %w", err)
		}
	}
	if len(plan.DNS.Search) > 0 {
		if _, err := client.Do(ctlplane.Request{Op: ctlplane.OpAddDNSSearch, Handle: handle, Domains: plan.DNS.Search}); err != nil {
			return fmt.Errorf("staging DNS search domains: %w", err)
		}
	}

	if plan.MTU != 0 {
		if _, err := client.Do(ctlplane.Request{Op: ctlplane.OpSetMTU, Handle: handle, MTU: plan.MTU}); err != nil {
			return fmt.Errorf("setting MTU: %w", err)
		}
	}
	return nil
}
