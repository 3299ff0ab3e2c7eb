package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keyrelay/internal/common"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx reply from the key API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps the server's error code back to its sentinel.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case common.KindUnauthorized:
		return ErrUnauthorized
	case common.KindValidation:
		return common.ErrValidation
	case common.KindUserNotFound:
		return common.ErrUserNotFound
	case common.KindNoAvailablePreKeys:
		return common.ErrNoAvailablePreKeys
	case common.KindKeyIDGenerationExhausted:
		return common.ErrKeyIDGenerationExhausted
	case common.KindStoreUnavailable:
		return ErrUnavailable
	default:
		return nil
	}
}
