package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFunc func(ctx context.Context, token string) (string, error)

func (f storeFunc) Lookup(ctx context.Context, token string) (string, error) { return f(ctx, token) }

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{
			name:  "bearer header",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") },
			want:  "abc",
		},
		{
			name:  "scheme is case insensitive",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") },
			want:  "abc",
		},
		{
			name: "header wins over cookie",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer abc")
				r.AddCookie(&http.Cookie{Name: "sid", Value: "cookie"})
			},
			want: "abc",
		},
		{
			name:  "cookie",
			setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sid", Value: "cookie"}) },
			want:  "cookie",
		},
		{
			name: "cookie wins over query",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "sid", Value: "cookie"})
				r.URL.RawQuery = "token=query"
			},
			want: "cookie",
		},
		{
			name:  "query",
			setup: func(r *http.Request) { r.URL.RawQuery = "token=query" },
			want:  "query",
		},
		{
			name:  "basic auth ignored",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic Zm9vOmJhcg==") },
			want:  "",
		},
		{
			name:  "nothing",
			setup: func(*http.Request) {},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			assert.Equal(t, tt.want, TokenFromRequest(r, "sid"))
		})
	}
}

func TestAuthenticator_NoTokenSkipsStore(t *testing.T) {
	called := false
	a := NewAuthenticator(storeFunc(func(context.Context, string) (string, error) {
		called = true
		return "alice", nil
	}), "", 0)

	_, err := a.Authenticate(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.False(t, called)
}

func TestAuthenticator_LookupIsBounded(t *testing.T) {
	a := NewAuthenticator(storeFunc(func(ctx context.Context, token string) (string, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok, "lookup must carry a deadline")
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)
		assert.Equal(t, "tok", token)
		return "alice", nil
	}), "sid", 50*time.Millisecond)

	r := httptest.NewRequest(http.MethodGet, "/ws?token=tok", nil)
	user, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}
