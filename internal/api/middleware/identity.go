package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the opaque authenticated identity handed in by the external
// auth collaborator at the session boundary. This core never validates
// credentials; it trusts the headers set by the authenticating proxy.
type Identity struct {
	UserID   string
	Username string
}

// RequireIdentity extracts the authenticated identity from the request
// headers and rejects requests without one.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			jsonError(w, http.StatusUnauthorized, "missing authenticated identity")
			return
		}
		id := &Identity{
			UserID:   userID,
			Username: r.Header.Get("X-Username"),
		}
		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentityFromContext returns the authenticated identity, or nil.
func GetIdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
