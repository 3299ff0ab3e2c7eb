package httpapi

import (
	"context"
	"net/http"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// requireSession rejects requests without a valid session and stores the
// caller's user id in the request context.
func (r *Router) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		userID, err := r.auth.Authenticate(req)
		if err != nil {
			r.respondError(w, req, err)
			return
		}
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), userIDKey, userID)))
	})
}

// UserIDFromContext returns the authenticated caller set by requireSession.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
