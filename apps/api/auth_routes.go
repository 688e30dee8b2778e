package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	ut "github.com/go-playground/universal-translator"
	"go.uber.org/zap"

	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/i18n"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/logging"
)

// meResponse surfaces the caller's identity, including the simulation
// indicator the frontend uses to render the simulation banner.
type meResponse struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email,omitempty"`
	Name     string    `json:"name,omitempty"`
	Role     auth.Role `json:"role"`
	TenantID string    `json:"tenant_id,omitempty"`

	IsSimulation        bool      `json:"is_simulation"`
	SimulationSessionID string    `json:"simulation_session_id,omitempty"`
	SimulationMode      string    `json:"simulation_mode,omitempty"`
	OriginalUserRole    auth.Role `json:"original_user_role,omitempty"`
}

// registerAuthRoutes mounts the identity endpoints. Both paths are on the
// write guard allow-list so they work inside a simulation session.
func registerAuthRoutes(r chi.Router, issuer *auth.Issuer, utrans *ut.UniversalTranslator, logger *zap.Logger) {
	r.Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		creds, ok := auth.CredentialsFromContext(r.Context())
		if !ok {
			writeUnauthorized(w, r, utrans)
			return
		}

		writeJSON(w, logger, http.StatusOK, meResponse{
			UserID:              creds.Subject,
			Email:               creds.Email,
			Name:                creds.Name,
			Role:                creds.Role,
			TenantID:            creds.TenantID,
			IsSimulation:        creds.IsSimulation,
			SimulationSessionID: creds.SimulationSessionID,
			SimulationMode:      creds.SimulationMode,
			OriginalUserRole:    creds.OriginalUserRole,
		})
	})

	// Refresh re-signs the carried claims, simulation fields included, so a
	// long session survives access token expiry without losing its scope.
	r.Post("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		creds, ok := auth.CredentialsFromContext(r.Context())
		if !ok || creds.TokenType != auth.TokenRefresh {
			writeUnauthorized(w, r, utrans)
			return
		}

		pair, err := issuer.IssuePair(*creds)
		if err != nil {
			logging.FromRequest(r, logger).Error("refresh credentials", zap.Error(err))
			trans := i18n.Locale(utrans, r.Header.Get("Accept-Language"))
			writeJSON(w, logger, http.StatusInternalServerError, map[string]string{
				"message": i18n.T(trans, "errors.internal"),
			})
			return
		}
		writeJSON(w, logger, http.StatusOK, pair)
	})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, utrans *ut.UniversalTranslator) {
	trans := i18n.Locale(utrans, r.Header.Get("Accept-Language"))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": i18n.T(trans, "errors.unauthorized"),
	})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}
