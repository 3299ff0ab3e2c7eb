package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/keyrelay/internal/flagx"
)

// parseFlags overlays Config with command-line flags.
//
//	-a string     HTTP bind address (key API, /ws, /metrics)
//	-g string     gRPC bind address (health)
//	-d string     PostgreSQL DSN
//	-r string     Redis address
//	-s string     JWT HMAC secret
//	-b string     session backend: redis or jwt
//	-t duration   offline queue TTL, e.g. 24h
//	-l string     log level
//
// Flags not in this list are ignored so -c/-config can share the command line.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, "a", "g", "d", "r", "s", "b", "t", "l")

	fs := flag.NewFlagSet("keyrelay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.SessionBackend, "b", config.SessionBackend, "session backend (redis|jwt)")
	fs.DurationVar(&config.OfflineTTL, "t", config.OfflineTTL, "offline queue ttl")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
