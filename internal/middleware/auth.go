package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// Authenticator resolves a bearer token into the caller's identity.
// Errors carry a message fit for the client.
type Authenticator interface {
	Identify(ctx context.Context, token string) (*access.Identity, error)
}

// AuthMiddleware validates bearer tokens
type AuthMiddleware struct {
	authenticator Authenticator
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// OptionalAuth puts the caller's identity into the context when an
// Authorization header is sent. Requests without one continue anonymously;
// a header that does not resolve is answered with 401 rather than silently
// downgraded.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := auth.ParseBearer(header)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		id, err := m.authenticator.Identify(r.Context(), token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireCapability rejects callers whose roles do not satisfy c
func RequireCapability(c access.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := access.Authorize(IdentityFromContext(r.Context()), c)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, access.ErrUnauthenticated):
				respondWithError(w, http.StatusUnauthorized, "Authentication required")
			default:
				respondWithError(w, http.StatusForbidden, "Insufficient permissions: "+c.String()+" role required")
			}
		})
	}
}

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id *access.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller's identity, or nil for anonymous
// requests
func IdentityFromContext(ctx context.Context) *access.Identity {
	id, _ := ctx.Value(identityKey).(*access.Identity)
	return id
}

// Helper function to respond with JSON error
func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
