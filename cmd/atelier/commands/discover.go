// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/spf13/pflag"

	"github.com/atelier-dev/atelier/cmd/atelier/cli"
)

func discoverCommand() *cli.Command {
	var wait time.Duration
	return &cli.Command{
		Name:    "discover",
		Summary: "find hubs announcing on the local network",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("discover", pflag.ContinueOnError)
			flags.DurationVar(&wait, "wait", 3*time.Second, "how long to listen for announcements")
			return flags
		},
		Run: func(args []string) error {
			return runDiscover(wait)
		},
	}
}

func runDiscover(wait time.Duration) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, "_atelier._tcp", "local.", entries); err != nil {
		return fmt.Errorf("mdns browse: %w", err)
	}

	found := 0
	for entry := range entries {
		for _, address := range entry.AddrIPv4 {
			fmt.Printf("%s\thttp://%s:%d\n", entry.Instance, address, entry.Port)
			found++
		}
	}
	if found == 0 {
		fmt.Println("no hubs found")
	}
	return nil
}
