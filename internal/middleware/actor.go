package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/internal/repository"
)

// ActorHeader carries the authenticated user id set by the identity gateway.
// The core trusts the id and only resolves the role itself.
const ActorHeader = "X-User-ID"

type actorContextKey struct{}

// Actor resolves the calling user's profile and injects it into the request
// context. Requests without a known user are rejected before any handler
// runs.
func Actor(profiles repository.ProfileRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(ActorHeader)
			if userID == "" {
				writeJSONError(w, http.StatusUnauthorized, "not_authorized", "missing "+ActorHeader+" header")
				return
			}

			profile, err := profiles.GetByID(r.Context(), userID)
			if err != nil {
				writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "profile lookup failed")
				return
			}
			if profile == nil {
				writeJSONError(w, http.StatusUnauthorized, "not_authorized", "unknown user")
				return
			}

			actor := models.Actor{ID: profile.ID, Role: profile.Role}
			ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(models.Actor)
	return actor, ok
}

// writeJSONError is the shared rejection shape for requests stopped before
// they reach a handler.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
