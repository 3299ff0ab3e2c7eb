package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds runtime settings for relayctl.
type Config struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Token = ""
	c.Timeout = 10 * time.Second
}

// LoadConfig builds a Config from defaults, the JSON file at path (if not
// empty) and the environment, in that order.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, path); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseEnv(cfg *Config) error {
	if v := os.Getenv("RELAY_SERVER"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("RELAY_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("RELAY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RELAY_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	return nil
}
