package chi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kailas-cloud/tailorly/internal/domain"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Admin bool
}

type principalKey struct{}

// ContextWithPrincipal stores the caller in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored by BearerAuthMiddleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// BearerAuthMiddleware returns a middleware that validates Bearer tokens.
// Tokens in adminKeys are valid too and mark the caller as admin.
// If both lists are empty, authentication is disabled (pass-through).
func BearerAuthMiddleware(apiKeys, adminKeys []string) func(http.Handler) http.Handler {
	validKeys := make(map[string]bool, len(apiKeys)+len(adminKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys[k] = false
		}
	}
	for _, k := range adminKeys {
		if k != "" {
			validKeys[k] = true
		}
	}

	return func(next http.Handler) http.Handler {
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, ErrorResponseCodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized,
					ErrorResponseCodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			admin, ok := validKeys[auth[len(bearerPrefix):]]
			if !ok {
				writeError(w, http.StatusUnauthorized, ErrorResponseCodeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), Principal{Admin: admin})))
		})
	}
}

// AuthorizeAdmin fails with domain.ErrForbidden when the caller
// authenticated with a non-admin key. Requests without a principal pass:
// authentication is disabled.
func AuthorizeAdmin(ctx context.Context) error {
	if p, ok := PrincipalFromContext(ctx); ok && !p.Admin {
		return fmt.Errorf("admin api key required: %w", domain.ErrForbidden)
	}
	return nil
}
