// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/atelier-dev/atelier/client"
	"github.com/atelier-dev/atelier/cmd/atelier/cli"
)

func joinCommand() *cli.Command {
	var (
		hubURL  string
		verbose bool
	)
	return &cli.Command{
		Name:    "join",
		Summary: "join an existing collaboration session",
		Usage:   "atelier join <share-url-or-session-id>",
		Description: "join connects to a session as a collaborator. The workspace is\n" +
			"replicated in memory only; nothing is written to this machine's\n" +
			"disk. The session ends for this client when the owner closes it\n" +
			"or on Ctrl-C.",
		Examples: []cli.Example{
			{Description: "join with the share URL the owner printed", Command: "atelier join 'http://192.168.1.20:7009/?session=4f7c...'"},
			{Description: "join by session id against a known hub", Command: "atelier join 4f7c... --hub http://192.168.1.20:7009"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("join", pflag.ContinueOnError)
			flags.StringVar(&hubURL, "hub", defaultHubURL, "hub base URL (ignored when a share URL is given)")
			flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("join takes exactly one share URL or session id")
			}
			sessionID, err := sessionIDFromArgument(args[0])
			if err != nil {
				return err
			}
			return runJoin(hubFromShareURL(args[0], hubURL), sessionID, verbose)
		},
	}
}

func runJoin(hubURL, sessionID string, verbose bool) error {
	logger := newLogger(verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sendDelay, persistDelay := syncDelays(logger)
	c, err := client.New(client.Config{
		HubURL:       hubURL,
		Logger:       logger,
		SendDelay:    sendDelay,
		PersistDelay: persistDelay,
		Handlers: client.Handlers{
			BufferUpdated: func(name, content string) {
				fmt.Printf("update: %s (%d bytes)\n", name, len(content))
			},
			FileSwitched: func(name, content string) {
				fmt.Printf("owner switched to %s\n", name)
			},
			FileListChanged: func(files []string) {
				fmt.Printf("files: %v\n", files)
			},
			SessionClosed: func(message string) {
				fmt.Println(message)
				stop()
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

	if err := c.Join(ctx, sessionID); err != nil {
		return err
	}
	fmt.Printf("joined session %s on %s\n", shortID(sessionID), hubURL)
	fmt.Printf("files: %v\n", c.Store().Files())
	fmt.Printf("open file: %s\n", c.OpenFile())

	rememberWorkspace(logger, client.RecentEntry{
		HubURL:    hubURL,
		SessionID: sessionID,
	})

	<-ctx.Done()
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Leave(leaveCtx)
}
