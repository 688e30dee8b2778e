package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation"
	simrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation/repo"
	"github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation/service"
	studentsrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/students/repo"
	tenantsrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/tenants/repo"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/i18n"
)

type env struct {
	handler   *Handler
	issuer    *auth.Issuer
	sessions  *simrepo.MemoryRepository
	tenantID  uuid.UUID
	studentID uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()

	tenantID := uuid.New()
	studentID := uuid.New()

	tenants := tenantsrepo.NewMemoryRegistry(tenantsrepo.TenantRecord{
		ID:           tenantID,
		Name:         "Shelbyville Nursing College",
		DatabaseName: "school_shelbyville",
	})
	students := studentsrepo.NewMemoryStore()
	students.Add("school_shelbyville", studentsrepo.StudentRecord{
		ID:       studentID,
		FullName: "Martin Prince",
		Email:    "martin@shelbyville.edu",
		Status:   studentsrepo.StatusActive,
	})

	issuer, err := auth.NewIssuer(auth.IssuerConfig{Secret: "handler-test-secret", Issuer: "ai-professor"})
	require.NoError(t, err)

	sessions := simrepo.NewMemoryRepository()
	svc := service.New(service.Config{
		Sessions: sessions,
		Tenants:  tenants,
		Students: students,
		Issuer:   issuer,
		Logger:   zap.NewNop(),
	})

	utrans, err := i18n.NewTranslator()
	require.NoError(t, err)

	return &env{
		handler:   New(svc, utrans, zap.NewNop()),
		issuer:    issuer,
		sessions:  sessions,
		tenantID:  tenantID,
		studentID: studentID,
	}
}

func (e *env) professor() *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
		Email:            "prof@shelbyville.edu",
		Role:             auth.RoleProfessor,
		TenantID:         e.tenantID.String(),
	}
}

func (e *env) request(t *testing.T, creds *auth.Claims, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	if creds != nil {
		req = req.WithContext(auth.WithCredentials(context.Background(), creds))
	}

	rec := httptest.NewRecorder()
	e.handler.Routes().ServeHTTP(rec, req)
	return rec
}

func TestStartReturnsCredentialPair(t *testing.T) {
	e := newEnv(t)

	rec := e.request(t, e.professor(), http.MethodPost, "/start", map[string]string{
		"student_id":      e.studentID.String(),
		"simulation_mode": "READ_ONLY",
		"purpose":         "grading dispute",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Session      struct {
			SessionID   uuid.UUID `json:"session_id"`
			StudentName string    `json:"student_name"`
			TenantName  string    `json:"tenant_name"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Martin Prince", resp.Session.StudentName)
	require.Equal(t, "Shelbyville Nursing College", resp.Session.TenantName)

	claims, err := e.issuer.Parse(resp.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.IsSimulation)
	require.Equal(t, resp.Session.SessionID.String(), claims.SimulationSessionID)
}

func TestStartValidatesPayload(t *testing.T) {
	e := newEnv(t)

	cases := map[string]map[string]string{
		"missing student": {"simulation_mode": "READ_ONLY"},
		"bad student id":  {"student_id": "not-a-uuid", "simulation_mode": "READ_ONLY"},
		"bad mode":        {"student_id": e.studentID.String(), "simulation_mode": "GOD_MODE"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.request(t, e.professor(), http.MethodPost, "/start", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), "errors.invalid_request")
		})
	}
}

func TestStartRejectionsAreLocalized(t *testing.T) {
	e := newEnv(t)
	creds := e.professor()
	creds.Role = auth.RoleStudent

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{
		"student_id":      e.studentID.String(),
		"simulation_mode": "READ_ONLY",
	}))
	req := httptest.NewRequest(http.MethodPost, "/start", &buf)
	req.Header.Set("Accept-Language", "fr-CA, en;q=0.5")
	req = req.WithContext(auth.WithCredentials(req.Context(), creds))

	rec := httptest.NewRecorder()
	e.handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Votre rôle")
}

func TestEndFlow(t *testing.T) {
	e := newEnv(t)
	creds := e.professor()

	rec := e.request(t, creds, http.MethodPost, "/start", map[string]string{
		"student_id":      e.studentID.String(),
		"simulation_mode": "DUMMY_STUDENT",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var started struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	simClaims, err := e.issuer.Parse(started.AccessToken)
	require.NoError(t, err)

	rec = e.request(t, simClaims, http.MethodPost, "/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ended struct {
		Message string `json:"message"`
		Tokens  *struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
		Session *struct {
			DurationSeconds int64 `json:"duration_seconds"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ended))
	require.Equal(t, "Simulation ended", ended.Message)
	require.NotNil(t, ended.Tokens)
	require.NotNil(t, ended.Session)

	restored, err := e.issuer.Parse(ended.Tokens.AccessToken)
	require.NoError(t, err)
	require.False(t, restored.IsSimulation)
	require.Equal(t, auth.RoleProfessor, restored.Role)

	// Replaying the simulation token conflicts.
	rec = e.request(t, simClaims, http.MethodPost, "/end", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "simulation.already_ended")
}

func TestEndWithoutSessionReturnsNoTokens(t *testing.T) {
	e := newEnv(t)

	rec := e.request(t, e.professor(), http.MethodPost, "/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotContains(t, resp, "tokens")
	require.NotContains(t, resp, "session")
}

func TestStatusReflectsTracking(t *testing.T) {
	e := newEnv(t)
	creds := e.professor()

	rec := e.request(t, creds, http.MethodPost, "/start", map[string]string{
		"student_id":      e.studentID.String(),
		"simulation_mode": "READ_ONLY",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var started struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	simClaims, err := e.issuer.Parse(started.AccessToken)
	require.NoError(t, err)

	rec = e.request(t, simClaims, http.MethodPost, "/track/page", map[string]string{"path": "/modules/pharmacology"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.request(t, simClaims, http.MethodPost, "/track/counter", map[string]string{"counter": "modules_viewed"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.request(t, simClaims, http.MethodPost, "/track/counter", map[string]string{"counter": "grades_changed"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.request(t, simClaims, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Status        string   `json:"status"`
		PagesVisited  []string `json:"pages_visited"`
		ModulesViewed int      `json:"modules_viewed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "ACTIVE", status.Status)
	require.Equal(t, []string{"/modules/pharmacology"}, status.PagesVisited)
	require.Equal(t, 1, status.ModulesViewed)
}

func TestTrackRequiresSimulationCredential(t *testing.T) {
	e := newEnv(t)

	rec := e.request(t, e.professor(), http.MethodPost, "/track/page", map[string]string{"path": "/anywhere"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "simulation.session_not_found")
}

func TestStatusWithoutSessionIsNotFound(t *testing.T) {
	e := newEnv(t)

	rec := e.request(t, e.professor(), http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCleanupReportsCount(t *testing.T) {
	e := newEnv(t)
	creds := e.professor()
	staffID := uuid.MustParse(creds.Subject)

	require.NoError(t, e.sessions.Create(context.Background(), simulation.Session{
		ID:               uuid.New(),
		OriginalUserID:   staffID,
		OriginalUserRole: auth.RoleProfessor,
		TenantID:         e.tenantID,
		Mode:             simulation.ModeReadOnly,
		Status:           simulation.StatusActive,
		StartedAt:        time.Now().Add(-3 * time.Hour),
	}))

	rec := e.request(t, creds, http.MethodPost, "/cleanup", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SessionsEnded int `json:"sessions_ended"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.SessionsEnded)
}
