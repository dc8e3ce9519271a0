// Package config loads and validates symaudit configuration.
package config

import "time"

// Config is the resolved configuration. Endpoints are deliberately absent:
// the registry and symbol-server URLs are fixed by the validation policy.
type Config struct {
	Network NetworkConfig `mapstructure:"network"`
	History HistoryConfig `mapstructure:"history"`
	Quiet   bool          `mapstructure:"quiet"`
}

// NetworkConfig controls the remote symbol tiers.
type NetworkConfig struct {
	// TimeoutSeconds bounds each remote fetch.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HistoryConfig controls the optional run log.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Timeout returns the network timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Network.TimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{TimeoutSeconds: 60},
		History: HistoryConfig{Enabled: false, Path: ""},
	}
}
