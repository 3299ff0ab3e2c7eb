// Package config loads runtime configuration for relayctl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file passed with --config.
//  3. Environment: RELAY_SERVER, RELAY_TOKEN, RELAY_TIMEOUT.
//  4. Command-line flags, applied by the CLI on top of the result.
//
// # JSON schema
//
// Durations are strings like "10s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "token": "…",
//	  "timeout": "10s"
//	}
package config
