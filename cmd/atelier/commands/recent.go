// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/atelier-dev/atelier/client"
	"github.com/atelier-dev/atelier/cmd/atelier/cli"
)

func recentCommand() *cli.Command {
	return &cli.Command{
		Name:    "recent",
		Summary: "list recently shared or joined workspaces",
		Run: func(args []string) error {
			path, err := recentStorePath()
			if err != nil {
				return err
			}
			store, err := client.OpenRecentStore(path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no recent workspaces")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tWORKSPACE\tWHERE")
			for _, entry := range entries {
				location := entry.Path
				if location == "" {
					location = entry.HubURL + " (joined)"
				}
				name := entry.WorkspaceName
				if name == "" {
					name = shortID(entry.SessionID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n",
					entry.LastOpened.Format("2006-01-02 15:04"), name, location)
			}
			return tw.Flush()
		},
	}
}
