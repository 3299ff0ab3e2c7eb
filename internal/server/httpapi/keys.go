package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/gorilla/mux"
)

type uploadBundleRequest struct {
	KeyBundle *models.UploadBundle `json:"keyBundle"`
}

type keyBundleResponse struct {
	KeyBundle *models.KeyBundle `json:"keyBundle"`
}

type addPreKeysRequest struct {
	OneTimePreKeys []models.OneTimePreKey `json:"oneTimePreKeys"`
}

type rotateSignedPreKeyRequest struct {
	SignedPreKey *models.SignedPreKey `json:"signedPreKey"`
}

type checkResponse struct {
	NeedsMorePreKeys bool `json:"needsMorePreKeys"`
	AvailableCount   int  `json:"availableCount"`
	Threshold        int  `json:"threshold"`
}

func (r *Router) uploadBundle(w http.ResponseWriter, req *http.Request) {
	userID, _ := UserIDFromContext(req.Context())

	var body uploadBundleRequest
	if err := decodeBody(w, req, &body); err != nil {
		r.respondError(w, req, err)
		return
	}
	if body.KeyBundle == nil {
		r.respondError(w, req, common.Invalid("keyBundle is required"))
		return
	}

	if err := r.keys.UploadKeyBundle(req.Context(), userID, body.KeyBundle); err != nil {
		r.respondError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"status":         "ok",
		"oneTimePreKeys": len(body.KeyBundle.OneTimePreKeys),
	})
}

func (r *Router) fetchBundle(w http.ResponseWriter, req *http.Request) {
	bundle, err := r.keys.GetKeyBundle(req.Context(), mux.Vars(req)["userId"])
	if err != nil {
		r.respondError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, keyBundleResponse{KeyBundle: bundle})
}

func (r *Router) stats(w http.ResponseWriter, req *http.Request) {
	userID, _ := UserIDFromContext(req.Context())

	st, err := r.keys.GetKeyStats(req.Context(), userID)
	if err != nil {
		r.respondError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (r *Router) check(w http.ResponseWriter, req *http.Request) {
	userID, _ := UserIDFromContext(req.Context())

	threshold := 0
	if raw := req.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			r.respondError(w, req, common.Invalid("threshold must be an integer"))
			return
		}
		threshold = n
	}

	needs, n, err := r.keys.NeedsMorePreKeys(req.Context(), userID, threshold)
	if err != nil {
		r.respondError(w, req, err)
		return
	}
	if threshold == 0 {
		threshold = r.keys.Threshold()
	}
	respondJSON(w, http.StatusOK, checkResponse{NeedsMorePreKeys: needs, AvailableCount: n, Threshold: threshold})
}

func (r *Router) addPreKeys(w http.ResponseWriter, req *http.Request) {
	userID, _ := UserIDFromContext(req.Context())

	var body addPreKeysRequest
	if err := decodeBody(w, req, &body); err != nil {
		r.respondError(w, req, err)
		return
	}
	if err := r.keys.AddOneTimePreKeys(req.Context(), userID, body.OneTimePreKeys); err != nil {
		r.respondError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"status": "ok", "added": len(body.OneTimePreKeys)})
}

func (r *Router) rotateSignedPreKey(w http.ResponseWriter, req *http.Request) {
	userID, _ := UserIDFromContext(req.Context())

	var body rotateSignedPreKeyRequest
	if err := decodeBody(w, req, &body); err != nil {
		r.respondError(w, req, err)
		return
	}
	if body.SignedPreKey == nil {
		r.respondError(w, req, common.Invalid("signedPreKey is required"))
		return
	}
	if err := r.keys.RotateSignedPreKey(req.Context(), userID, *body.SignedPreKey); err != nil {
		r.respondError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
