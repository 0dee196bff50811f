// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Atelier components.
//
// Configuration is loaded from a single file specified by:
//   - ATELIER_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Atelier.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Hub configures the session hub.
	Hub HubConfig `yaml:"hub"`

	// Redis configures the optional snapshot store.
	Redis RedisConfig `yaml:"redis"`

	// Sync configures replication timing.
	Sync SyncConfig `yaml:"sync"`

	// Runner configures code execution.
	Runner RunnerConfig `yaml:"runner"`

	// Terminal configures the shared terminal.
	Terminal TerminalConfig `yaml:"terminal"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Hub      *HubConfig      `yaml:"hub,omitempty"`
	Redis    *RedisConfig    `yaml:"redis,omitempty"`
	Sync     *SyncConfig     `yaml:"sync,omitempty"`
	Runner   *RunnerConfig   `yaml:"runner,omitempty"`
	Terminal *TerminalConfig `yaml:"terminal,omitempty"`
}

// HubConfig configures the session hub.
type HubConfig struct {
	// ListenAddress is the address the hub serves on.
	// Default: :7009
	ListenAddress string `yaml:"listen_address"`

	// PublicURL is the externally reachable base URL embedded in
	// share URLs. Default: http://localhost:7009
	PublicURL string `yaml:"public_url"`

	// Discovery enables mDNS announcement on the local network.
	// Default: true (development), false (production)
	Discovery bool `yaml:"discovery"`

	// InstanceName is the mDNS instance name when discovery is on.
	// Default: the machine hostname.
	InstanceName string `yaml:"instance_name"`
}

// RedisConfig configures the optional redis snapshot store. An empty
// address means sessions live in process memory only.
type RedisConfig struct {
	// Address is the redis host:port. Empty disables redis.
	Address string `yaml:"address"`

	// Password authenticates against redis when set.
	Password string `yaml:"password"`

	// SnapshotTTL is how long orphaned session snapshots survive.
	// Default: 24h
	SnapshotTTL string `yaml:"snapshot_ttl"`
}

// SyncConfig configures replication timing.
type SyncConfig struct {
	// SendDelay is the idle period before a local edit is emitted.
	// Default: 300ms
	SendDelay string `yaml:"send_delay"`

	// PersistDelay is the idle period before the owner's debounced
	// disk write fires. Default: 1200ms
	PersistDelay string `yaml:"persist_delay"`
}

// RunnerConfig configures code execution on the hub.
type RunnerConfig struct {
	// Enabled turns the execution endpoint on.
	// Default: true (development), false (production)
	Enabled bool `yaml:"enabled"`

	// Timeout bounds one execution, compile steps included.
	// Default: 10s
	Timeout string `yaml:"timeout"`
}

// TerminalConfig configures the shared terminal endpoint.
type TerminalConfig struct {
	// Enabled turns the terminal endpoint on.
	// Default: true (development), false (production)
	Enabled bool `yaml:"enabled"`

	// Shell is the command run inside the pty.
	// Default: /bin/bash
	Shell string `yaml:"shell"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "atelier-hub"
	}

	return &Config{
		Environment: Development,
		Hub: HubConfig{
			ListenAddress: ":7009",
			PublicURL:     "http://localhost:7009",
			Discovery:     true,
			InstanceName:  hostname,
		},
		Redis: RedisConfig{
			Address:     "",
			SnapshotTTL: "24h",
		},
		Sync: SyncConfig{
			SendDelay:    "300ms",
			PersistDelay: "1200ms",
		},
		Runner: RunnerConfig{
			Enabled: true,
			Timeout: "10s",
		},
		Terminal: TerminalConfig{
			Enabled: true,
			Shell:   "/bin/bash",
		},
	}
}

// Load loads configuration from ATELIER_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if ATELIER_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("ATELIER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("ATELIER_CONFIG environment variable not set; " +
			"set it to the path of your atelier.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: no LAN announcement, no arbitrary code
		// execution or shell unless explicitly enabled.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Hub:      &HubConfig{Discovery: false},
				Runner:   &RunnerConfig{Enabled: false},
				Terminal: &TerminalConfig{Enabled: false},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Hub != nil {
		if overrides.Hub.ListenAddress != "" {
			c.Hub.ListenAddress = overrides.Hub.ListenAddress
		}
		if overrides.Hub.PublicURL != "" {
			c.Hub.PublicURL = overrides.Hub.PublicURL
		}
		// Discovery is a bool, so we always apply it from overrides.
		c.Hub.Discovery = overrides.Hub.Discovery
		if overrides.Hub.InstanceName != "" {
			c.Hub.InstanceName = overrides.Hub.InstanceName
		}
	}

	if overrides.Redis != nil {
		if overrides.Redis.Address != "" {
			c.Redis.Address = overrides.Redis.Address
		}
		if overrides.Redis.Password != "" {
			c.Redis.Password = overrides.Redis.Password
		}
		if overrides.Redis.SnapshotTTL != "" {
			c.Redis.SnapshotTTL = overrides.Redis.SnapshotTTL
		}
	}

	if overrides.Sync != nil {
		if overrides.Sync.SendDelay != "" {
			c.Sync.SendDelay = overrides.Sync.SendDelay
		}
		if overrides.Sync.PersistDelay != "" {
			c.Sync.PersistDelay = overrides.Sync.PersistDelay
		}
	}

	if overrides.Runner != nil {
		c.Runner.Enabled = overrides.Runner.Enabled
		if overrides.Runner.Timeout != "" {
			c.Runner.Timeout = overrides.Runner.Timeout
		}
	}

	if overrides.Terminal != nil {
		c.Terminal.Enabled = overrides.Terminal.Enabled
		if overrides.Terminal.Shell != "" {
			c.Terminal.Shell = overrides.Terminal.Shell
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Hub.PublicURL = expandVars(c.Hub.PublicURL, vars)
	c.Redis.Address = expandVars(c.Redis.Address, vars)
	c.Redis.Password = expandVars(c.Redis.Password, vars)
	c.Terminal.Shell = expandVars(c.Terminal.Shell, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Hub.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("hub.listen_address is required"))
	}

	if c.Hub.PublicURL == "" {
		errs = append(errs, fmt.Errorf("hub.public_url is required"))
	}

	for field, value := range map[string]string{
		"redis.snapshot_ttl": c.Redis.SnapshotTTL,
		"sync.send_delay":    c.Sync.SendDelay,
		"sync.persist_delay": c.Sync.PersistDelay,
		"runner.timeout":     c.Runner.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	if c.Terminal.Enabled && c.Terminal.Shell == "" {
		errs = append(errs, fmt.Errorf("terminal.shell is required when the terminal is enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Duration parses one of the config's duration strings, falling back
// to the given default when the field is empty. Call Validate first;
// a malformed value here is a programming error.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
