// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Command atelier-hub serves collaboration sessions: the session
// registry and relay, the websocket endpoint, and optionally code
// execution, the shared terminal, and mDNS announcement.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/atelier-dev/atelier/lib/config"
	"github.com/atelier-dev/atelier/lib/version"
	"github.com/atelier-dev/atelier/registry"
	"github.com/atelier-dev/atelier/runner"
	"github.com/atelier-dev/atelier/terminal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listenAddr  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to atelier.yaml (overrides ATELIER_CONFIG)")
	flag.StringVar(&listenAddr, "listen", "", "listen address (overrides the config file)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("atelier-hub %s\n", version.String())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Hub.ListenAddress = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg := registry.New(registry.Config{
		Store:     store,
		Logger:    logger,
		PublicURL: cfg.Hub.PublicURL,
	})

	router := mux.NewRouter()
	reg.Routes(router)

	if cfg.Runner.Enabled {
		execTimeout := config.Duration(cfg.Runner.Timeout, runner.DefaultTimeout)
		runner.New(execTimeout, logger).Routes(router)
		logger.Info("code execution enabled", "timeout", execTimeout)
	}
	if cfg.Terminal.Enabled {
		terminal.NewHandler(cfg.Terminal.Shell, logger).Routes(router)
		logger.Info("shared terminal enabled", "shell", cfg.Terminal.Shell)
	}

	if cfg.Hub.Discovery {
		port, err := listenPort(cfg.Hub.ListenAddress)
		if err != nil {
			logger.Warn("mDNS announcement disabled", "error", err)
		} else {
			go func() {
				if err := registry.Announce(ctx, cfg.Hub.InstanceName, port, logger); err != nil {
					logger.Warn("mDNS announcement failed", "error", err)
				}
			}()
		}
	}

	server := &http.Server{
		Addr:              cfg.Hub.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("hub listening",
			"address", cfg.Hub.ListenAddress,
			"public_url", cfg.Hub.PublicURL,
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("hub server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// loadConfig resolves configuration from the --config flag, then the
// ATELIER_CONFIG environment variable, then built-in defaults. The
// zero-configuration default keeps "share a directory on the LAN"
// a single command.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("ATELIER_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// buildStore selects the snapshot store: redis when configured,
// process memory otherwise.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (registry.SessionStore, error) {
	if cfg.Redis.Address == "" {
		return registry.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis at %s: %w", cfg.Redis.Address, err)
	}
	ttl := config.Duration(cfg.Redis.SnapshotTTL, registry.DefaultSnapshotTTL)
	logger.Info("using redis snapshot store", "address", cfg.Redis.Address, "ttl", ttl)
	return registry.NewRedisStore(client, ttl), nil
}

// listenPort extracts the numeric port from a listen address.
func listenPort(address string) (int, error) {
	_, portString, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil || port <= 0 {
		return 0, errors.New("listen address has no numeric port")
	}
	return port, nil
}
