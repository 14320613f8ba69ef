// Copyright 2026 The Hearty Rabbit Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the server configuration file. The format is
// JSONC (JSON with comments and trailing commas), so operators can
// annotate their deployment files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// Defaults applied by Load for absent fields.
const (
	DefaultRedisAddress   = "localhost:6379"
	DefaultSessionLength  = 1 * time.Hour
	DefaultSessionGrace   = 30 * time.Second
	DefaultPasswordHash   = "sha512"
	DefaultPasswordRounds = 5000

	minimumPasswordRounds   = 5000
	minimumSessionLengthSec = 60
)

// Config is the deployment configuration for the hearty-rabbit core.
type Config struct {
	// RedisAddress is the key-value store endpoint in host:port form.
	RedisAddress string `json:"redis"`

	// SessionLengthSeconds is the TTL of a freshly issued session.
	SessionLengthSeconds int64 `json:"session_length"`

	// SessionGraceSeconds is how long a renewed-away session token
	// remains valid for requests already in flight.
	SessionGraceSeconds int64 `json:"session_grace"`

	// PasswordHash names the digest used for password key derivation
	// when creating users.
	PasswordHash string `json:"password_hash"`

	// PasswordRounds is the key-derivation iteration count for new
	// users. Existing users keep the count recorded at creation.
	PasswordRounds int `json:"password_rounds"`
}

// SessionLength returns the session TTL as a Duration.
func (c *Config) SessionLength() time.Duration {
	return time.Duration(c.SessionLengthSeconds) * time.Second
}

// SessionGrace returns the renewal grace period as a Duration.
func (c *Config) SessionGrace() time.Duration {
	return time.Duration(c.SessionGraceSeconds) * time.Second
}

// Load reads, parses, and validates a configuration file, applying
// defaults for absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration bytes. Comments and trailing commas are
// stripped before JSON decoding.
func Parse(data []byte) (*Config, error) {
	config := &Config{
		RedisAddress:         DefaultRedisAddress,
		SessionLengthSeconds: int64(DefaultSessionLength / time.Second),
		SessionGraceSeconds:  int64(DefaultSessionGrace / time.Second),
		PasswordHash:         DefaultPasswordHash,
		PasswordRounds:       DefaultPasswordRounds,
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if config.RedisAddress == "" {
		return nil, fmt.Errorf("config: redis address is empty")
	}
	if config.SessionLengthSeconds < minimumSessionLengthSec {
		return nil, fmt.Errorf("config: session_length %d is below the %ds minimum",
			config.SessionLengthSeconds, minimumSessionLengthSec)
	}
	if config.SessionGraceSeconds <= 0 {
		return nil, fmt.Errorf("config: session_grace must be positive")
	}
	if config.PasswordRounds < minimumPasswordRounds {
		return nil, fmt.Errorf("config: password_rounds %d is below the %d minimum",
			config.PasswordRounds, minimumPasswordRounds)
	}
	switch config.PasswordHash {
	case "sha256", "sha512":
	default:
		return nil, fmt.Errorf("config: unsupported password_hash %q", config.PasswordHash)
	}
	return config, nil
}
