package config

import "fmt"

// Validate checks a resolved configuration for values the validator cannot
// work with.
func Validate(cfg *Config) error {
	if cfg.Network.TimeoutSeconds <= 0 {
		return fmt.Errorf("network.timeout_seconds must be positive, got %d", cfg.Network.TimeoutSeconds)
	}
	if cfg.Network.TimeoutSeconds > 600 {
		return fmt.Errorf("network.timeout_seconds must be at most 600, got %d", cfg.Network.TimeoutSeconds)
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		return fmt.Errorf("history.path is required when history.enabled is true")
	}
	return nil
}
