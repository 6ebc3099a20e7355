package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/pkg/utils"
)

type contextKey struct{}

// Authenticator resolves bearer tokens to user ids.
type Authenticator struct {
	tokens map[string]string
}

// NewAuthenticator creates an authenticator over a token to user map.
func NewAuthenticator(tokens map[string]string) *Authenticator {
	copied := make(map[string]string, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &Authenticator{tokens: copied}
}

// UserForToken returns the user a token belongs to.
func (a *Authenticator) UserForToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	user, ok := a.tokens[token]
	return user, ok
}

// RequireAuth rejects requests without a valid token with 401.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.UserForToken(TokenFromRequest(r))
		if !ok {
			log.Debug().Str("component", "auth").Str("path", r.URL.Path).Msg("rejected unauthenticated request")
			utils.RespondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through. An invalid token is still rejected.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, ok := a.UserForToken(token)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by websocket clients.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// WithUser stores the user id in ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user id, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(contextKey{}).(string)
	return user, ok && user != ""
}
