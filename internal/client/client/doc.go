// Package client talks to a keyrelay server: the key-distribution HTTP API
// and the WebSocket relay.
//
// Errors returned by the key API are *APIError values. They unwrap to the
// matching sentinel in internal/common, so callers can test for, e.g.,
// common.ErrNoAvailablePreKeys with errors.Is.
package client
