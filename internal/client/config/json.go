package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/keyrelay/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell absent keys apart from zero values.
type JsonConfig struct {
	ServerURL *string         `json:"server_url"`
	Token     *string         `json:"token"`
	Timeout   *timex.Duration `json:"timeout"`
}

// parseJson overlays cfg with the keys present in the file at path.
func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerURL != nil {
		cfg.ServerURL = *jc.ServerURL
	}
	if jc.Token != nil {
		cfg.Token = *jc.Token
	}
	if jc.Timeout != nil {
		cfg.Timeout = jc.Timeout.Duration
	}
	return nil
}
