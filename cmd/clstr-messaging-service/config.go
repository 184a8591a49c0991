// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultHeartbeat is the interval between heartbeat frames on watch
// streams when the config does not override it.
const defaultHeartbeat = 30 * time.Second

// Config is the daemon configuration, loaded from a YAML file and
// overridable by flags.
type Config struct {
	// Socket is the Unix socket path the service listens on.
	Socket string

	// Database is the SQLite database file. Created on first run.
	Database string

	// Policy is an optional YAML file listing privileged roles that
	// may message without a connection. Empty means nobody bypasses
	// the gate.
	Policy string

	// Seed is an optional JSONC file of identities to provision into
	// the directory at startup. Existing entries are overwritten, so
	// the file can be re-applied after edits.
	Seed string

	// PoolSize is the SQLite connection pool size. Zero means the
	// pool's default.
	PoolSize int

	// Heartbeat is the interval between heartbeat frames on watch
	// streams. Zero means defaultHeartbeat.
	Heartbeat time.Duration
}

// configFile is the on-disk YAML shape:
//
//	socket: /run/clstr/messaging.sock
//	database: /var/lib/clstr/messaging.db
//	policy: /etc/clstr/policy.yaml
//	seed: /etc/clstr/identities.jsonc
//	pool_size: 4
//	heartbeat: 30s
type configFile struct {
	Socket    string `yaml:"socket"`
	Database  string `yaml:"database"`
	Policy    string `yaml:"policy"`
	Seed      string `yaml:"seed"`
	PoolSize  int    `yaml:"pool_size"`
	Heartbeat string `yaml:"heartbeat"`
}

// LoadConfig reads and parses a YAML config file. Defaults are not
// applied here; run() applies them after flag overrides so a flag can
// fill a field the file leaves empty.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var parsed configFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	config := Config{
		Socket:   parsed.Socket,
		Database: parsed.Database,
		Policy:   parsed.Policy,
		Seed:     parsed.Seed,
		PoolSize: parsed.PoolSize,
	}

	if parsed.Heartbeat != "" {
		heartbeat, err := time.ParseDuration(parsed.Heartbeat)
		if err != nil {
			return Config{}, fmt.Errorf("config file %s: invalid heartbeat: %w", path, err)
		}
		if heartbeat <= 0 {
			return Config{}, fmt.Errorf("config file %s: heartbeat must be positive", path)
		}
		config.Heartbeat = heartbeat
	}

	return config, nil
}

// validate checks that required fields are set after flag overrides
// and fills remaining defaults.
func (c *Config) validate() error {
	if c.Socket == "" {
		return fmt.Errorf("socket path is required (config 'socket' or --socket)")
	}
	if c.Database == "" {
		return fmt.Errorf("database path is required (config 'database' or --database)")
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = defaultHeartbeat
	}
	return nil
}
