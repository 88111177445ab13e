package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/deskhub/staffchat/internal/identity"
	"github.com/deskhub/staffchat/internal/models"
	"github.com/deskhub/staffchat/internal/store"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// AuthMiddleware resolves session tokens into verified identities. Token
// issuance belongs to the external session service; this middleware only
// verifies and rejects.
type AuthMiddleware struct {
	resolver   identity.Resolver
	heartbeats store.HeartbeatStore
	logger     zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(resolver identity.Resolver, heartbeats store.HeartbeatStore, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver:   resolver,
		heartbeats: heartbeats,
		logger:     logger.With().Str("component", "auth").Logger(),
	}
}

// RequireIdentity verifies the bearer token and attaches the resolved
// identity to the request context. Every authenticated request doubles as
// a heartbeat so pull-side availability tracks HTTP-only clients too.
func (m *AuthMiddleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		ident, err := m.resolver.Resolve(token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "unresolvable identity")
			return
		}

		if err := m.heartbeats.Touch(r.Context(), ident); err != nil {
			// Heartbeat tracking is best-effort
			m.logger.Warn().Err(err).Str("identity", ident.ID).Msg("heartbeat touch failed")
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, &ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentityFromContext retrieves the verified identity from the request
// context, or nil when the request was not authenticated.
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	ident, _ := ctx.Value(IdentityContextKey).(*models.Identity)
	return ident
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
