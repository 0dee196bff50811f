// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the atelier CLI command tree.
package commands

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atelier-dev/atelier/client"
	"github.com/atelier-dev/atelier/cmd/atelier/cli"
	"github.com/atelier-dev/atelier/lib/config"
	"github.com/atelier-dev/atelier/lib/version"
	"github.com/atelier-dev/atelier/workspace"
)

// defaultHubURL is where a hub runs when nobody configured anything.
const defaultHubURL = "http://localhost:7009"

// Root returns the atelier command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "atelier",
		Summary: "collaborative editing sessions over a local hub",
		Description: "atelier shares a directory of files as a live collaboration\n" +
			"session, or joins one someone else is sharing.",
		Subcommands: []*cli.Command{
			shareCommand(),
			joinCommand(),
			runCommand(),
			recentCommand(),
			discoverCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print version information",
		Run: func(args []string) error {
			fmt.Println(version.Detailed())
			return nil
		},
	}
}

// newLogger builds the CLI's logger. Text output at warn level keeps
// the terminal usable for the session itself; --verbose lowers the
// threshold.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// syncDelays resolves the outbound send debounce and the owner-side
// persistence debounce from ATELIER_CONFIG when it is set, otherwise
// built-in defaults. The CLI takes no --config flag; pointing the
// environment variable at the hub's file is enough to tune both ends.
func syncDelays(logger *slog.Logger) (send, persist time.Duration) {
	send = client.DefaultSendDelay
	persist = workspace.DefaultPersistDelay
	if os.Getenv("ATELIER_CONFIG") == "" {
		return send, persist
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("ignoring ATELIER_CONFIG", "error", err)
		return send, persist
	}
	return config.Duration(cfg.Sync.SendDelay, send), config.Duration(cfg.Sync.PersistDelay, persist)
}

// sessionIDFromArgument accepts either a bare session id or a full
// share URL with a ?session= query parameter.
func sessionIDFromArgument(argument string) (string, error) {
	if !strings.Contains(argument, "://") {
		return argument, nil
	}
	parsed, err := url.Parse(argument)
	if err != nil {
		return "", fmt.Errorf("parse share URL: %w", err)
	}
	id := parsed.Query().Get("session")
	if id == "" {
		return "", fmt.Errorf("share URL %q carries no session parameter", argument)
	}
	return id, nil
}

// hubFromShareURL extracts the hub base URL from a share URL, or
// returns fallback for bare session ids.
func hubFromShareURL(argument, fallback string) string {
	if !strings.Contains(argument, "://") {
		return fallback
	}
	parsed, err := url.Parse(argument)
	if err != nil {
		return fallback
	}
	return parsed.Scheme + "://" + parsed.Host
}

// recentStorePath is where the CLI keeps its recent-workspace
// database.
func recentStorePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	directory := filepath.Join(configDir, "atelier")
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return filepath.Join(directory, "recent.db"), nil
}
