// Package httpapi exposes the key-distribution service over HTTP and mounts
// the relay, health and metrics endpoints next to it.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/gorilla/mux"
)

// KeyService is the key-distribution API the handlers call into.
type KeyService interface {
	UploadKeyBundle(ctx context.Context, userID string, bundle *models.UploadBundle) error
	GetKeyBundle(ctx context.Context, userID string) (*models.KeyBundle, error)
	NeedsMorePreKeys(ctx context.Context, userID string, threshold int) (bool, int, error)
	AddOneTimePreKeys(ctx context.Context, userID string, keys []models.OneTimePreKey) error
	RotateSignedPreKey(ctx context.Context, userID string, spk models.SignedPreKey) error
	GetKeyStats(ctx context.Context, userID string) (*models.KeyStats, error)
	Threshold() int
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// Readiness reports whether the backing stores are reachable.
type Readiness interface {
	Serving() bool
}

// Router wraps the mux router with the services behind it.
type Router struct {
	*mux.Router
	keys  KeyService
	auth  Authenticator
	log   logging.Logger
	ready Readiness

	relay   http.Handler
	metrics http.Handler
}

type Option func(*Router)

// WithRelay mounts the WebSocket relay at /ws.
func WithRelay(h http.Handler) Option {
	return func(r *Router) { r.relay = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(r *Router) { r.metrics = h }
}

// WithReadiness makes /healthz report 503 while ready is not serving.
func WithReadiness(ready Readiness) Option {
	return func(r *Router) { r.ready = ready }
}

func NewRouter(keys KeyService, auth Authenticator, log logging.Logger, opts ...Option) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		keys:   keys,
		auth:   auth,
		log:    log.With("module", "httpapi"),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.HandleFunc("/healthz", r.healthCheck).Methods(http.MethodGet)
	if r.metrics != nil {
		r.Handle("/metrics", r.metrics).Methods(http.MethodGet)
	}
	if r.relay != nil {
		r.Handle("/ws", r.relay).Methods(http.MethodGet)
	}

	keysAPI := r.PathPrefix("/keys").Subrouter()
	keysAPI.Use(r.requireSession)
	keysAPI.HandleFunc("/bundle", r.uploadBundle).Methods(http.MethodPost)
	keysAPI.HandleFunc("/bundle/{userId}", r.fetchBundle).Methods(http.MethodGet)
	keysAPI.HandleFunc("/stats", r.stats).Methods(http.MethodGet)
	keysAPI.HandleFunc("/check", r.check).Methods(http.MethodGet)
	keysAPI.HandleFunc("/prekeys", r.addPreKeys).Methods(http.MethodPost)
	keysAPI.HandleFunc("/signed-prekey", r.rotateSignedPreKey).Methods(http.MethodPut)

	return r
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	if r.ready != nil && !r.ready.Serving() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
