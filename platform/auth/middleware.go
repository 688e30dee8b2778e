package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type ctxKey string

const ctxCredentials ctxKey = "AIPROF_USER_CREDENTIALS"

// WithCredentials returns a derived context carrying the parsed claims.
func WithCredentials(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxCredentials, claims)
}

// CredentialsFromContext extracts the authenticated claims, if present.
func CredentialsFromContext(ctx context.Context) (*Claims, bool) {
	v := ctx.Value(ctxCredentials)
	if v == nil {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// ExtractBearer pulls the bearer token from the Authorization header.
func ExtractBearer(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}

// Authenticate parses the bearer token (when present) and sets the context
// credentials. Requests without a token pass through anonymously; route
// groups that need authentication stack RequireAuthenticated on top.
func Authenticate(issuer *Issuer) func(http.Handler) http.Handler {
	if issuer == nil {
		panic("auth.Authenticate: issuer is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractBearer(r)
			if !found || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := issuer.Parse(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description="%s"`, err.Error()))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// Refresh tokens only authenticate the refresh endpoint; they
			// never authorize regular API traffic.
			if claims.TokenType == TokenRefresh && r.URL.Path != "/api/v1/auth/refresh" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithCredentials(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects requests without context credentials.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CredentialsFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole gates a route group to the listed roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := CredentialsFromContext(r.Context())
			if !ok || creds == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			for _, role := range roles {
				if creds.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}
