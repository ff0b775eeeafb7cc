package config

import (
	"fmt"

	"github.com/leialab/leia/pkg/purge"
)

// Validate checks a configuration for inconsistencies that would only
// surface at runtime otherwise.
func Validate(cfg *Config) error {
	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", cfg.Gateway.Port)
	}

	for i, local := range cfg.Providers.Local {
		if local.Name == "" {
			return fmt.Errorf("local provider %d: name is required", i)
		}
		if local.Name == "default" {
			return fmt.Errorf("local provider %d: name %q is reserved", i, local.Name)
		}
		if local.BaseURL == "" {
			return fmt.Errorf("local provider %q: base_url is required", local.Name)
		}
		if local.Model == "" {
			return fmt.Errorf("local provider %q: model is required", local.Name)
		}
	}

	if cfg.Purge.Enabled {
		if cfg.Purge.Schedule == "" {
			return fmt.Errorf("purge schedule is required when purge is enabled")
		}
		if _, _, err := purge.ParseTimeFrame(cfg.Purge.TimeFrame); err != nil {
			return fmt.Errorf("invalid purge time frame: %w", err)
		}
	}

	if cfg.Catalog.Timeout < 0 {
		return fmt.Errorf("catalog timeout cannot be negative")
	}
	return nil
}
