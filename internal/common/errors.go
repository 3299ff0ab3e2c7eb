package common

import (
	"errors"
	"fmt"
)

var (
	// key store errors
	ErrUserNotFound             = errors.New("user not found")
	ErrNoAvailablePreKeys       = errors.New("no available pre-keys")
	ErrKeyIDGenerationExhausted = errors.New("key id generation exhausted")

	// infrastructure errors
	ErrStoreUnavailable = errors.New("store unavailable")

	// input errors
	ErrValidation = errors.New("validation error")

	// session errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
)

// Invalid returns a validation error carrying a human readable reason.
// The result matches ErrValidation with errors.Is.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Error kinds reported to clients and used as metric labels.
const (
	KindUnauthorized             = "Unauthorized"
	KindValidation               = "ValidationError"
	KindNoAvailablePreKeys       = "NoAvailablePreKeys"
	KindUserNotFound             = "UserNotFound"
	KindKeyIDGenerationExhausted = "KeyIdGenerationExhausted"
	KindStoreUnavailable         = "StoreUnavailable"
	KindInternal                 = "Internal"
)

// KindOf maps err to one of the Kind* constants. Unknown errors are
// reported as KindInternal.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken):
		return KindUnauthorized
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNoAvailablePreKeys):
		return KindNoAvailablePreKeys
	case errors.Is(err, ErrUserNotFound):
		return KindUserNotFound
	case errors.Is(err, ErrKeyIDGenerationExhausted):
		return KindKeyIDGenerationExhausted
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}
