// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/atelier-dev/atelier/client"
	"github.com/atelier-dev/atelier/cmd/atelier/cli"
	"github.com/atelier-dev/atelier/workspace"
)

func shareCommand() *cli.Command {
	var (
		hubURL        string
		workspaceName string
		verbose       bool
	)
	return &cli.Command{
		Name:    "share",
		Summary: "share a directory as a new collaboration session",
		Usage:   "atelier share [directory]",
		Description: "share registers the directory's files as a new session on the\n" +
			"hub and keeps them synchronized until interrupted. The printed\n" +
			"share URL is what collaborators join with. This machine owns the\n" +
			"session: edits from every participant are persisted here, and\n" +
			"closing the session ends it for everyone.",
		Examples: []cli.Example{
			{Description: "share the current directory", Command: "atelier share"},
			{Description: "share a project on a specific hub", Command: "atelier share ~/project --hub http://192.168.1.20:7009"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("share", pflag.ContinueOnError)
			flags.StringVar(&hubURL, "hub", defaultHubURL, "hub base URL")
			flags.StringVar(&workspaceName, "name", "", "workspace display name (default: directory name)")
			flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
			return flags
		},
		Run: func(args []string) error {
			directory := "."
			if len(args) > 0 {
				directory = args[0]
			}
			absolute, err := filepath.Abs(directory)
			if err != nil {
				return err
			}
			if workspaceName == "" {
				workspaceName = filepath.Base(absolute)
			}
			return runShare(hubURL, absolute, workspaceName, verbose)
		},
	}
}

func runShare(hubURL, directory, workspaceName string, verbose bool) error {
	logger := newLogger(verbose)
	backend, err := workspace.NewLocalBackend(directory)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sendDelay, persistDelay := syncDelays(logger)
	c, err := client.New(client.Config{
		HubURL:       hubURL,
		Logger:       logger,
		SendDelay:    sendDelay,
		PersistDelay: persistDelay,
		Handlers: client.Handlers{
			ParticipantJoined: func(id string) {
				fmt.Printf("participant joined: %s\n", shortID(id))
			},
			ParticipantLeft: func(id string) {
				fmt.Printf("participant left: %s\n", shortID(id))
			},
			Disconnected: func(err error) {
				fmt.Fprintf(os.Stderr, "connection to hub lost: %v\n", err)
				stop()
			},
		},
	})
	if err != nil {
		return err
	}

	response, err := c.Share(ctx, backend, workspaceName)
	if err != nil {
		return err
	}
	fmt.Printf("sharing %s as %q\n", directory, workspaceName)
	fmt.Printf("share URL: %s\n", response.ShareURL)
	fmt.Println("press Ctrl-C to end the session")

	rememberWorkspace(logger, client.RecentEntry{
		Path:          directory,
		WorkspaceName: workspaceName,
		HubURL:        hubURL,
		SessionID:     response.SessionID,
	})

	<-ctx.Done()
	fmt.Println("\nclosing session")
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Leave(leaveCtx)
}

// rememberWorkspace records the session in the recent-workspace
// database. Failures are logged, not fatal; the session works without
// the convenience list.
func rememberWorkspace(logger *slog.Logger, entry client.RecentEntry) {
	path, err := recentStorePath()
	if err != nil {
		logger.Warn("recent-workspace store unavailable", "error", err)
		return
	}
	store, err := client.OpenRecentStore(path)
	if err != nil {
		logger.Warn("recent-workspace store unavailable", "error", err)
		return
	}
	defer store.Close()
	if err := store.Touch(entry); err != nil {
		logger.Warn("recording recent workspace failed", "error", err)
	}
}

// shortID truncates a participant UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
