package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/keyrelay/internal/flagx"
	"github.com/dmitrijs2005/keyrelay/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "30s" and integer nanoseconds are accepted.
type JsonConfig struct {
	HTTPAddr             string         `json:"http_addr"`
	GRPCAddr             string         `json:"grpc_addr"`
	DatabaseDSN          string         `json:"database_dsn"`
	EmbeddedDB           bool           `json:"embedded_db"`
	RedisAddr            string         `json:"redis_addr"`
	RedisPassword        string         `json:"redis_password"`
	RedisDB              int            `json:"redis_db"`
	SessionBackend       string         `json:"session_backend"`
	SessionPrefix        string         `json:"session_prefix"`
	SessionCookie        string         `json:"session_cookie"`
	SecretKey            string         `json:"secret_key"`
	AuthTimeout          timex.Duration `json:"auth_timeout"`
	OfflinePrefix        string         `json:"offline_prefix"`
	OfflineTTL           timex.Duration `json:"offline_ttl"`
	PreKeyThreshold      int            `json:"prekey_threshold"`
	CleanupInterval      timex.Duration `json:"cleanup_interval"`
	CleanupRetentionDays int            `json:"cleanup_retention_days"`
	HealthInterval       timex.Duration `json:"health_interval"`
	PersistWorkers       int            `json:"persist_workers"`
	PersistBuffer        int            `json:"persist_buffer"`
	LogLevel             string         `json:"log_level"`
	LogFormat            string         `json:"log_format"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		HTTPAddr:             c.HTTPAddr,
		GRPCAddr:             c.GRPCAddr,
		DatabaseDSN:          c.DatabaseDSN,
		EmbeddedDB:           c.EmbeddedDB,
		RedisAddr:            c.RedisAddr,
		RedisPassword:        c.RedisPassword,
		RedisDB:              c.RedisDB,
		SessionBackend:       c.SessionBackend,
		SessionPrefix:        c.SessionPrefix,
		SessionCookie:        c.SessionCookie,
		SecretKey:            c.SecretKey,
		AuthTimeout:          timex.Duration{Duration: c.AuthTimeout},
		OfflinePrefix:        c.OfflinePrefix,
		OfflineTTL:           timex.Duration{Duration: c.OfflineTTL},
		PreKeyThreshold:      c.PreKeyThreshold,
		CleanupInterval:      timex.Duration{Duration: c.CleanupInterval},
		CleanupRetentionDays: c.CleanupRetentionDays,
		HealthInterval:       timex.Duration{Duration: c.HealthInterval},
		PersistWorkers:       c.PersistWorkers,
		PersistBuffer:        c.PersistBuffer,
		LogLevel:             c.LogLevel,
		LogFormat:            c.LogFormat,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.HTTPAddr = j.HTTPAddr
	c.GRPCAddr = j.GRPCAddr
	c.DatabaseDSN = j.DatabaseDSN
	c.EmbeddedDB = j.EmbeddedDB
	c.RedisAddr = j.RedisAddr
	c.RedisPassword = j.RedisPassword
	c.RedisDB = j.RedisDB
	c.SessionBackend = j.SessionBackend
	c.SessionPrefix = j.SessionPrefix
	c.SessionCookie = j.SessionCookie
	c.SecretKey = j.SecretKey
	c.AuthTimeout = j.AuthTimeout.Duration
	c.OfflinePrefix = j.OfflinePrefix
	c.OfflineTTL = j.OfflineTTL.Duration
	c.PreKeyThreshold = j.PreKeyThreshold
	c.CleanupInterval = j.CleanupInterval.Duration
	c.CleanupRetentionDays = j.CleanupRetentionDays
	c.HealthInterval = j.HealthInterval.Duration
	c.PersistWorkers = j.PersistWorkers
	c.PersistBuffer = j.PersistBuffer
	c.LogLevel = j.LogLevel
	c.LogFormat = j.LogFormat
}

// parseJson overlays Config with the JSON file named by -c or -config.
// Keys absent from the file keep their current values.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.apply(config)
	return nil
}
