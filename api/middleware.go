package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/campushub/studyhub/auth"
	"github.com/campushub/studyhub/globals"
)

type contextKey string

const UserIdKey contextKey = "user_id"

// BearerAuth verifies the Authorization header on every protected route and
// puts the caller's user id into the request context.
func BearerAuth(verifier *auth.Verifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			}
			userId, err := verifier.Verify(token)
			if err != nil {
				if errors.Is(err, auth.ErrNoCredential) {
					respondError(w, http.StatusUnauthorized, "authentication required")
				} else {
					respondError(w, http.StatusUnauthorized, "invalid or expired credential")
				}
				return
			}
			ctx := context.WithValue(r.Context(), UserIdKey, userId)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIdFrom returns the authenticated caller's id, 0 if the middleware did
// not run.
func UserIdFrom(r *http.Request) uint {
	id, _ := r.Context().Value(UserIdKey).(uint)
	return id
}

// Logging logs one line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		globals.AppLogger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
