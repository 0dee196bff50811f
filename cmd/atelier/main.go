// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Command atelier is the CLI for collaborative editing sessions:
// share a directory, join someone else's session, run code on the
// hub, and find hubs on the local network.
package main

import (
	"fmt"
	"os"

	"github.com/atelier-dev/atelier/cmd/atelier/commands"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
