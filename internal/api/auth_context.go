package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

const (
	claimsKey    ctxKey = "claims"
	authErrorKey ctxKey = "authError"
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// GetClaims returns the verified token claims from context.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// authMiddleware returns a middleware that validates Bearer tokens and
// stores their claims in context. Requests without a valid token continue;
// handlers decide through requireScope whether that is acceptable.
func authMiddleware(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := tokens.Verify(token)
			if err != nil {
				ctx = context.WithValue(ctx, authErrorKey, err)
			} else {
				ctx = context.WithValue(ctx, claimsKey, claims)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the token from the Authorization header, or from the
// access_token query parameter for EventSource clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// requireScope checks that the request carries a token granting scope.
// Without Auth.Required every request passes.
func (s *Server) requireScope(ctx context.Context, scope auth.Scope) error {
	if !s.authRequired {
		return nil
	}
	if err, ok := ctx.Value(authErrorKey).(error); ok {
		return s.toAPIError(err, "authenticate")
	}
	claims, ok := GetClaims(ctx)
	if !ok {
		return fromDomain(domainerrors.Unauthorized("authentication required"))
	}
	if !claims.Has(scope) {
		return fromDomain(domainerrors.Forbidden("token lacks the " + string(scope) + " scope"))
	}
	return nil
}
