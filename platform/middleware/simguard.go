package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	ut "github.com/go-playground/universal-translator"

	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/i18n"
)

type allowWritesKey struct{}

// AllowSimulationWrites marks a route group as allowed to mutate state under
// a simulation credential (e.g. the session's own tracking endpoints). It
// must be stacked before the guard in the middleware chain.
func AllowSimulationWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), allowWritesKey{}, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writesAllowed(ctx context.Context) bool {
	allowed, _ := ctx.Value(allowWritesKey{}).(bool)
	return allowed
}

// GuardConfig configures the simulation write guard.
type GuardConfig struct {
	// AllowedPaths are exact request paths that pass regardless of method:
	// session status/end, current-user lookup, and token refresh.
	AllowedPaths []string
	// OnReject is an optional hook for metrics.
	OnReject func()
}

// DefaultAllowedPaths is the fixed allow-list from the product requirements.
var DefaultAllowedPaths = []string{
	"/api/v1/simulation/status",
	"/api/v1/simulation/end",
	"/api/v1/auth/me",
	"/api/v1/auth/refresh",
}

// SimulationWriteGuard is the sole enforcement boundary preventing a
// simulation credential from mutating real tenant data. Non-simulation
// credentials pass unconditionally; under simulation only read methods, the
// allow-list, and explicitly marked route groups get through.
func SimulationWriteGuard(utrans *ut.UniversalTranslator, cfg GuardConfig) func(http.Handler) http.Handler {
	if utrans == nil {
		panic("simulation write guard requires translator")
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedPaths))
	for _, path := range cfg.AllowedPaths {
		allowed[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := auth.CredentialsFromContext(r.Context())
			if !ok || creds == nil || !creds.IsSimulation {
				next.ServeHTTP(w, r)
				return
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if writesAllowed(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.OnReject != nil {
				cfg.OnReject()
			}

			trans := i18n.Locale(utrans, r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"message": i18n.T(trans, "simulation.write_blocked"),
			})
		})
	}
}
