package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	uploaded   map[string]*models.UploadBundle
	added      map[string][]models.OneTimePreKey
	rotated    map[string]models.SignedPreKey
	bundle     *models.KeyBundle
	available  int
	threshold  int
	lastCheck  int
	fetchedFor string
	err        error
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{
		uploaded:  map[string]*models.UploadBundle{},
		added:     map[string][]models.OneTimePreKey{},
		rotated:   map[string]models.SignedPreKey{},
		threshold: 10,
	}
}

func (f *fakeKeys) UploadKeyBundle(_ context.Context, userID string, b *models.UploadBundle) error {
	if f.err != nil {
		return f.err
	}
	f.uploaded[userID] = b
	return nil
}

func (f *fakeKeys) GetKeyBundle(_ context.Context, userID string) (*models.KeyBundle, error) {
	f.fetchedFor = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

func (f *fakeKeys) NeedsMorePreKeys(_ context.Context, _ string, threshold int) (bool, int, error) {
	f.lastCheck = threshold
	if f.err != nil {
		return false, 0, f.err
	}
	if threshold == 0 {
		threshold = f.threshold
	}
	return f.available < threshold, f.available, nil
}

func (f *fakeKeys) AddOneTimePreKeys(_ context.Context, userID string, keys []models.OneTimePreKey) error {
	if f.err != nil {
		return f.err
	}
	f.added[userID] = append(f.added[userID], keys...)
	return nil
}

func (f *fakeKeys) RotateSignedPreKey(_ context.Context, userID string, spk models.SignedPreKey) error {
	if f.err != nil {
		return f.err
	}
	f.rotated[userID] = spk
	return nil
}

func (f *fakeKeys) GetKeyStats(_ context.Context, _ string) (*models.KeyStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.KeyStats{TotalPreKeys: 3, AvailablePreKeys: 2, ConsumedPreKeys: 1,
		LastUpdated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}, nil
}

func (f *fakeKeys) Threshold() int { return f.threshold }

// tokenAuth accepts "Bearer <user>" for any non-empty user.
type tokenAuth struct{}

func (tokenAuth) Authenticate(r *http.Request) (string, error) {
	user, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || user == "" {
		return "", common.ErrUnauthorized
	}
	return user, nil
}

type readiness bool

func (r readiness) Serving() bool { return bool(r) }

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestKeysRequireSession(t *testing.T) {
	r := NewRouter(newFakeKeys(), tokenAuth{}, logging.Discard())

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/keys/bundle"},
		{http.MethodGet, "/keys/bundle/bob"},
		{http.MethodGet, "/keys/stats"},
		{http.MethodGet, "/keys/check"},
		{http.MethodPost, "/keys/prekeys"},
		{http.MethodPut, "/keys/signed-prekey"},
	} {
		rec := do(t, r, tc.method, tc.path, "", "{}")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.Equal(t, ErrorResponse{Error: "unauthorized", Code: common.KindUnauthorized}, decodeError(t, rec))
	}
}

func TestUploadBundle(t *testing.T) {
	keys := newFakeKeys()
	r := NewRouter(keys, tokenAuth{}, logging.Discard())

	body := `{"keyBundle":{"registrationId":7,"identityPubKey":"ik","signedPreKey":{"keyId":1,"publicKey":"pk","signature":"sig"},
		"oneTimePreKeys":[{"keyId":1,"publicKey":"a"},{"keyId":2,"publicKey":"b"}]}}`
	rec := do(t, r, http.MethodPost, "/keys/bundle", "alice", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, keys.uploaded, "alice")
	assert.Equal(t, uint32(7), keys.uploaded["alice"].RegistrationID)
	assert.Equal(t, "ik", keys.uploaded["alice"].IdentityKey)
	assert.Len(t, keys.uploaded["alice"].OneTimePreKeys, 2)
}

func TestUploadBundle_BadBodies(t *testing.T) {
	r := NewRouter(newFakeKeys(), tokenAuth{}, logging.Discard())

	for name, body := range map[string]string{
		"not json":       "nope",
		"missing bundle": `{}`,
		"wrong types":    `{"keyBundle":{"registrationId":"seven"}}`,
	} {
		rec := do(t, r, http.MethodPost, "/keys/bundle", "alice", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, common.KindValidation, decodeError(t, rec).Code, name)
	}
}

func TestFetchBundle(t *testing.T) {
	keys := newFakeKeys()
	keys.bundle = &models.KeyBundle{
		RegistrationID: 7,
		IdentityKey:    "ik",
		SignedPreKey:   models.SignedPreKey{KeyID: 1, PublicKey: "pk", Signature: "sig"},
		OneTimePreKeys: []models.OneTimePreKey{{KeyID: 9, PublicKey: "otk"}},
	}
	r := NewRouter(keys, tokenAuth{}, logging.Discard())

	rec := do(t, r, http.MethodGet, "/keys/bundle/bob", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", keys.fetchedFor)
	assert.JSONEq(t, `{"keyBundle":{"registrationId":7,"identityPubKey":"ik",
		"signedPreKey":{"keyId":1,"publicKey":"pk","signature":"sig"},
		"oneTimePreKeys":[{"keyId":9,"publicKey":"otk"}]}}`, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{common.ErrUserNotFound, http.StatusNotFound, common.KindUserNotFound},
		{common.ErrNoAvailablePreKeys, http.StatusServiceUnavailable, common.KindNoAvailablePreKeys},
		{fmt.Errorf("db error: %w", common.ErrStoreUnavailable), http.StatusServiceUnavailable, common.KindStoreUnavailable},
		{common.Invalid("userId is required"), http.StatusBadRequest, common.KindValidation},
		{common.ErrKeyIDGenerationExhausted, http.StatusInternalServerError, common.KindKeyIDGenerationExhausted},
		{errors.New("boom"), http.StatusInternalServerError, common.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			keys := newFakeKeys()
			keys.err = tt.err
			r := NewRouter(keys, tokenAuth{}, logging.Discard())

			rec := do(t, r, http.MethodGet, "/keys/bundle/bob", "alice", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	keys := newFakeKeys()
	keys.err = errors.New("pq: password authentication failed for user postgres")
	r := NewRouter(keys, tokenAuth{}, logging.Discard())

	rec := do(t, r, http.MethodGet, "/keys/stats", "alice", "")
	assert.Equal(t, ErrorResponse{Error: "internal error", Code: common.KindInternal}, decodeError(t, rec))
}

func TestStats(t *testing.T) {
	r := NewRouter(newFakeKeys(), tokenAuth{}, logging.Discard())

	rec := do(t, r, http.MethodGet, "/keys/stats", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalPreKeys":3,"availablePreKeys":2,"consumedPreKeys":1,"lastUpdated":"2026-01-02T03:04:05Z"}`, rec.Body.String())
}

func TestCheck(t *testing.T) {
	keys := newFakeKeys()
	keys.available = 5
	r := NewRouter(keys, tokenAuth{}, logging.Discard())

	rec := do(t, r, http.MethodGet, "/keys/check", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"needsMorePreKeys":true,"availableCount":5,"threshold":10}`, rec.Body.String())
	assert.Zero(t, keys.lastCheck)

	rec = do(t, r, http.MethodGet, "/keys/check?threshold=5", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"needsMorePreKeys":false,"availableCount":5,"threshold":5}`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/keys/check?threshold=lots", "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddPreKeys(t *testing.T) {
	keys := newFakeKeys()
	r := NewRouter(keys, tokenAuth{}, logging.Discard())

	rec := do(t, r, http.MethodPost, "/keys/prekeys", "alice", `{"oneTimePreKeys":[{"keyId":5,"publicKey":"x"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []models.OneTimePreKey{{KeyID: 5, PublicKey: "x"}}, keys.added["alice"])
}

func TestRotateSignedPreKey(t *testing.T) {
	keys := newFakeKeys()
	r := NewRouter(keys, tokenAuth{}, logging.Discard())

	rec := do(t, r, http.MethodPut, "/keys/signed-prekey", "alice", `{"signedPreKey":{"keyId":2,"publicKey":"p","signature":"s"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SignedPreKey{KeyID: 2, PublicKey: "p", Signature: "s"}, keys.rotated["alice"])

	rec = do(t, r, http.MethodPut, "/keys/signed-prekey", "alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/keys/signed-prekey", "alice", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndMounts(t *testing.T) {
	relay := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })

	r := NewRouter(newFakeKeys(), tokenAuth{}, logging.Discard(),
		WithRelay(relay), WithMetricsHandler(metrics), WithReadiness(readiness(true)))

	rec := do(t, r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	assert.Equal(t, http.StatusTeapot, do(t, r, http.MethodGet, "/ws", "", "").Code)
	assert.Equal(t, "# metrics", do(t, r, http.MethodGet, "/metrics", "", "").Body.String())

	down := NewRouter(newFakeKeys(), tokenAuth{}, logging.Discard(), WithReadiness(readiness(false)))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, http.MethodGet, "/healthz", "", "").Code)
}
