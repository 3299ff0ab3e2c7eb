package relay

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/server/sessions"
)

const DefaultAuthTimeout = 5 * time.Second

// Authenticator resolves the user behind an HTTP request from its session
// token. It is used for WebSocket upgrades and for the key API.
type Authenticator struct {
	store   sessions.Store
	cookie  string
	timeout time.Duration
}

func NewAuthenticator(store sessions.Store, cookieName string, timeout time.Duration) *Authenticator {
	if cookieName == "" {
		cookieName = common.DefaultSessionCookie
	}
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	return &Authenticator{store: store, cookie: cookieName, timeout: timeout}
}

// Authenticate returns the user id for r. The lookup is bounded by the
// authenticator timeout; a request without a token fails with
// common.ErrUnauthorized without touching the store.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	token := TokenFromRequest(r, a.cookie)
	if token == "" {
		return "", common.ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	return a.store.Lookup(ctx, token)
}

// TokenFromRequest looks for a session token in the Authorization bearer
// header, then the session cookie, then the token query parameter.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get(common.AuthorizationHeader); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get(common.TokenQueryParam)
}
