package config

import (
	"fmt"
	"strings"
)

func ValidateConfig(c *Config) error {
	if strings.TrimSpace(c.OwnerAccount) == "" {
		return fmt.Errorf("config: OwnerAccount must be set")
	}
	if c.RateLimitPerSecond <= 0 {
		return fmt.Errorf("config: RateLimitPerSecond <= 0")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: RateLimitBurst <= 0")
	}
	if _, err := c.Limits(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
