package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const envPrefix = "KEYRELAY_"

// parseEnv overlays Config with KEYRELAY_* environment variables.
// Unset or empty variables leave the current value in place.
func parseEnv(c *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("DATABASE_DSN", &c.DatabaseDSN)
	flag("EMBEDDED_DB", &c.EmbeddedDB)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	num("REDIS_DB", &c.RedisDB)
	str("SESSION_BACKEND", &c.SessionBackend)
	str("SESSION_PREFIX", &c.SessionPrefix)
	str("SESSION_COOKIE", &c.SessionCookie)
	str("SECRET_KEY", &c.SecretKey)
	dur("AUTH_TIMEOUT", &c.AuthTimeout)
	str("OFFLINE_PREFIX", &c.OfflinePrefix)
	dur("OFFLINE_TTL", &c.OfflineTTL)
	num("PREKEY_THRESHOLD", &c.PreKeyThreshold)
	dur("CLEANUP_INTERVAL", &c.CleanupInterval)
	num("CLEANUP_RETENTION_DAYS", &c.CleanupRetentionDays)
	dur("HEALTH_INTERVAL", &c.HealthInterval)
	num("PERSIST_WORKERS", &c.PersistWorkers)
	num("PERSIST_BUFFER", &c.PersistBuffer)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	return errors.Join(errs...)
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
