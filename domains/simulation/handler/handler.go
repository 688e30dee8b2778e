package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation"
	"github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation/service"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/apperr"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/i18n"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/logging"
	platformmw "github.com/spaceboi21/ai-professor-backend-sub006/platform/middleware"
)

type operation string

const (
	startOperation   operation = "startSimulation"
	endOperation     operation = "endSimulation"
	statusOperation  operation = "simulationStatus"
	trackOperation   operation = "trackSimulationActivity"
	cleanupOperation operation = "cleanupSimulations"
)

// Handler exposes the simulation session manager over HTTP.
type Handler struct {
	svc      service.Service
	utrans   *ut.UniversalTranslator
	validate *validator.Validate
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, utrans *ut.UniversalTranslator, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("simulation service is required")
	}
	if utrans == nil {
		panic("translator is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{
		svc:      svc,
		utrans:   utrans,
		validate: validator.New(),
		logger:   logger,
	}
}

// Routes mounts the simulation endpoints. The tracking group is annotated so
// the write guard lets the session record its own activity.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/start", h.Start)
	r.Post("/end", h.End)
	r.Get("/status", h.Status)
	r.Post("/cleanup", h.Cleanup)

	r.Group(func(r chi.Router) {
		r.Use(platformmw.AllowSimulationWrites)
		r.Post("/track/page", h.TrackPage)
		r.Post("/track/counter", h.TrackCounter)
	})
	return r
}

type startRequest struct {
	StudentID      string `json:"student_id" validate:"required,uuid"`
	SimulationMode string `json:"simulation_mode" validate:"required,oneof=READ_ONLY DUMMY_STUDENT"`
	Purpose        string `json:"purpose" validate:"omitempty,max=500"`
	TenantID       string `json:"tenant_id" validate:"omitempty,uuid"`
}

type startResponse struct {
	auth.TokenPair
	Session service.Summary `json:"session"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	creds, ok := auth.CredentialsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, startOperation, apperr.New(apperr.KindForbidden, "errors.unauthorized"))
		return
	}

	var req startRequest
	if !h.decode(w, r, startOperation, &req) {
		return
	}

	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		h.writeError(w, r, startOperation, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request"))
		return
	}
	input := service.StartInput{
		StudentID: studentID,
		Mode:      simulation.Mode(req.SimulationMode),
		Purpose:   req.Purpose,
	}
	if req.TenantID != "" {
		tenantID, err := uuid.Parse(req.TenantID)
		if err != nil {
			h.writeError(w, r, startOperation, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request"))
			return
		}
		input.TenantID = &tenantID
	}

	result, err := h.svc.Start(r.Context(), creds, input)
	if err != nil {
		h.writeError(w, r, startOperation, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, startResponse{
		TokenPair: result.Tokens,
		Session:   result.Summary,
	})
}

type endResponse struct {
	Message string                `json:"message"`
	Tokens  *auth.TokenPair       `json:"tokens,omitempty"`
	Session *service.EndedSummary `json:"session,omitempty"`
}

func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	creds, ok := auth.CredentialsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, endOperation, apperr.New(apperr.KindForbidden, "errors.unauthorized"))
		return
	}

	result, err := h.svc.End(r.Context(), creds)
	if err != nil {
		h.writeError(w, r, endOperation, err)
		return
	}

	trans := i18n.Locale(h.utrans, r.Header.Get("Accept-Language"))
	resp := endResponse{
		Message: i18n.T(trans, "simulation.ended"),
		Session: result.Summary,
	}
	if result.Summary != nil {
		resp.Tokens = &result.Tokens
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	SessionID     uuid.UUID `json:"session_id"`
	Status        string    `json:"status"`
	Mode          string    `json:"mode"`
	StudentName   string    `json:"student_name"`
	StudentEmail  string    `json:"student_email"`
	TenantName    string    `json:"tenant_name"`
	StartedAt     string    `json:"started_at"`
	EndedAt       *string   `json:"ended_at,omitempty"`
	PagesVisited  []string  `json:"pages_visited"`
	ModulesViewed int       `json:"modules_viewed"`
	QuizzesViewed int       `json:"quizzes_viewed"`
	AIChatsOpened int       `json:"ai_chats_opened"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	creds, ok := auth.CredentialsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, statusOperation, apperr.New(apperr.KindForbidden, "errors.unauthorized"))
		return
	}

	session, err := h.svc.Status(r.Context(), creds)
	if err != nil {
		h.writeError(w, r, statusOperation, err)
		return
	}

	resp := statusResponse{
		SessionID:     session.ID,
		Status:        string(session.Status),
		Mode:          string(session.Mode),
		StudentName:   session.SimulatedStudentName,
		StudentEmail:  session.SimulatedStudentEmail,
		TenantName:    session.TenantName,
		StartedAt:     session.StartedAt.Format(timeFormat),
		PagesVisited:  session.PagesVisited,
		ModulesViewed: session.ModulesViewed,
		QuizzesViewed: session.QuizzesViewed,
		AIChatsOpened: session.AIChatsOpened,
	}
	if resp.PagesVisited == nil {
		resp.PagesVisited = []string{}
	}
	if session.EndedAt != nil {
		ended := session.EndedAt.Format(timeFormat)
		resp.EndedAt = &ended
	}
	h.writeJSON(w, http.StatusOK, resp)
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

type trackPageRequest struct {
	Path string `json:"path" validate:"required,max=2048"`
}

// TrackPage records a page visit for the caller's own session. Tracking is
// best-effort, so the response is always 202 once the request parses.
func (h *Handler) TrackPage(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromCredentials(w, r, trackOperation)
	if !ok {
		return
	}

	var req trackPageRequest
	if !h.decode(w, r, trackOperation, &req) {
		return
	}

	h.svc.TrackPageVisit(r.Context(), sessionID, req.Path)
	w.WriteHeader(http.StatusAccepted)
}

type trackCounterRequest struct {
	Counter string `json:"counter" validate:"required,oneof=modules_viewed quizzes_viewed ai_chats_opened"`
}

func (h *Handler) TrackCounter(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromCredentials(w, r, trackOperation)
	if !ok {
		return
	}

	var req trackCounterRequest
	if !h.decode(w, r, trackOperation, &req) {
		return
	}

	h.svc.IncrementCounter(r.Context(), sessionID, simulation.Counter(req.Counter))
	w.WriteHeader(http.StatusAccepted)
}

type cleanupResponse struct {
	SessionsEnded int `json:"sessions_ended"`
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	creds, ok := auth.CredentialsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, cleanupOperation, apperr.New(apperr.KindForbidden, "errors.unauthorized"))
		return
	}

	count, err := h.svc.CleanupStuckSessions(r.Context(), creds)
	if err != nil {
		h.writeError(w, r, cleanupOperation, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cleanupResponse{SessionsEnded: count})
}

// sessionFromCredentials requires an active simulation credential; tracking
// endpoints only make sense inside a session.
func (h *Handler) sessionFromCredentials(w http.ResponseWriter, r *http.Request, op operation) (uuid.UUID, bool) {
	creds, ok := auth.CredentialsFromContext(r.Context())
	if !ok || !creds.IsSimulation || creds.SimulationSessionID == "" {
		h.writeError(w, r, op, apperr.New(apperr.KindBadRequest, "simulation.session_not_found"))
		return uuid.Nil, false
	}
	sessionID, err := uuid.Parse(creds.SimulationSessionID)
	if err != nil {
		h.writeError(w, r, op, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request"))
		return uuid.Nil, false
	}
	return sessionID, true
}

// decode parses and validates the JSON body, writing the localized rejection
// itself. It reports whether the caller should proceed.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op operation, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, op, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, op, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request"))
		return false
	}
	return true
}

type problemResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op operation, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	key, params := apperr.MessageKeyOf(err)

	logger := logging.FromRequest(r, h.logger)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("simulation operation failed", append(fields, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("simulation resource not found", append(fields, zap.Error(err))...)
	default:
		logger.Warn("simulation request rejected", append(fields, zap.Error(err))...)
	}

	trans := i18n.Locale(h.utrans, r.Header.Get("Accept-Language"))
	h.writeJSON(w, status, problemResponse{
		Message: i18n.T(trans, key, params...),
		Code:    key,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}
