package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dcsp-io/dcsp/internal/adminauth"
)

// publicEndpoints defines endpoints that bypass authentication (e.g. K8s
// health probes). Only health-check endpoints belong here -- never a
// business-logic route.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint marks path as bypassing the Auth middleware.
// Call during route setup, never for anything beyond health probes.
func RegisterPublicEndpoint(path string) {
	publicEndpoints[path] = true
}

// callerIDKey is the context key the Auth middleware sets once a request's
// admin API key has been verified.
type callerIDKey struct{}

// GetCallerID extracts the verified admin key's id from the request
// context, returning "" if the request was never authenticated (auth
// disabled, or running behind a handler that doesn't require it).
func GetCallerID(ctx context.Context) string {
	if id, ok := ctx.Value(callerIDKey{}).(string); ok {
		return id
	}

	return ""
}

// extractAPIKey reads the presented key from X-Api-Key first, falling
// back to "Authorization: Bearer <key>".
func extractAPIKey(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-Api-Key")); key != "" {
		return key, true
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		key := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if key != "" {
			return key, true
		}
	}

	return "", false
}

// Auth creates a middleware that requires a verified admin API key on
// every request it wraps, gating the ingestion-trigger and registration
// endpoints per SPEC_FULL.md's admin/ingestion-caller auth expansion.
func Auth(store *adminauth.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicEndpoints[r.URL.Path] {
				next.ServeHTTP(w, r)

				return
			}

			correlationID := GetCorrelationID(r.Context())

			presented, ok := extractAPIKey(r)
			if !ok {
				logger.Warn("admin auth: missing api key", slog.String("correlation_id", correlationID))
				writeUnauthorized(w, "missing API key")

				return
			}

			key, err := store.Verify(r.Context(), presented)
			if err != nil {
				if errors.Is(err, adminauth.ErrKeyRevoked) {
					logger.Warn("admin auth: revoked key presented", slog.String("correlation_id", correlationID))
				} else {
					logger.Warn("admin auth: verification failed", slog.String("correlation_id", correlationID))
				}

				writeUnauthorized(w, "invalid API key")

				return
			}

			ctx := context.WithValue(r.Context(), callerIDKey{}, key.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"type":"https://dcsp.io/problems/401","title":"Unauthorized","status":401,"detail":"` + detail + `"}`))
}
