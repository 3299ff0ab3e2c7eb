package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/keyrelay/internal/common"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func statusFor(kind string) int {
	switch kind {
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindValidation:
		return http.StatusBadRequest
	case common.KindUserNotFound:
		return http.StatusNotFound
	case common.KindNoAvailablePreKeys, common.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) respondError(w http.ResponseWriter, req *http.Request, err error) {
	kind := common.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError && kind != common.KindNoAvailablePreKeys:
		r.log.Error(req.Context(), "request failed", "method", req.Method, "path", req.URL.Path, "code", kind, "error", err)
		if kind == common.KindInternal {
			msg = "internal error"
		}
	case kind == common.KindUnauthorized:
		msg = common.ErrUnauthorized.Error()
	}

	respondJSON(w, status, ErrorResponse{Error: msg, Code: kind})
}

// decodeBody reads a JSON request body into v. Any decoding problem is a
// validation error.
func decodeBody(w http.ResponseWriter, req *http.Request, v any) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	dec := json.NewDecoder(req.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return common.Invalid("request body too large")
		}
		return common.Invalid("malformed JSON body: %v", err)
	}
	return nil
}
