// Package common contains shared constants and sentinel errors used across
// keyrelay components.
package common

const (
	// AuthorizationHeader carries "Bearer <token>" on HTTP and WebSocket
	// upgrade requests.
	AuthorizationHeader = "Authorization"

	// TokenQueryParam is the query parameter browsers use to pass a session
	// token during the WebSocket upgrade, where custom headers are not available.
	TokenQueryParam = "token"

	// DefaultSessionCookie is the cookie name consulted when no header or
	// query token is present.
	DefaultSessionCookie = "sid"

	// MaxKeyID is the largest key identifier accepted for signed and
	// one-time pre-keys (24 bits).
	MaxKeyID = 0xFFFFFF

	// MaxPreKeysPerUpload bounds the number of one-time pre-keys in a
	// single bundle upload or replenish request.
	MaxPreKeysPerUpload = 100
)
