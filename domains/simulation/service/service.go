package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spaceboi21/ai-professor-backend-sub006/domains/audit"
	"github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation"
	simrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation/repo"
	studentsrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/students/repo"
	tenantsrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/tenants/repo"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/apperr"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
)

// Activity types emitted to the audit sink.
const (
	activitySimulationStarted = "SIMULATION_STARTED"
	activitySimulationEnded   = "SIMULATION_ENDED"
	activitySimulationCleanup = "SIMULATION_CLEANUP"
)

// StartInput is the payload for opening a session.
type StartInput struct {
	StudentID uuid.UUID
	Mode      simulation.Mode
	// Purpose is free text kept for audit only.
	Purpose string
	// TenantID is required for the top-level admin role and must be absent
	// or matching for everyone else.
	TenantID *uuid.UUID
}

// StartResult carries the scoped credential pair plus a display summary.
type StartResult struct {
	Tokens    auth.TokenPair
	SessionID uuid.UUID
	Summary   Summary
}

// Summary is the display-friendly description of the simulated student.
type Summary struct {
	SessionID    uuid.UUID `json:"session_id"`
	StudentName  string    `json:"student_name"`
	StudentEmail string    `json:"student_email"`
	TenantName   string    `json:"tenant_name"`
	StartedAt    time.Time `json:"started_at"`
}

// EndedSummary describes a finished session including its activity counters.
type EndedSummary struct {
	SessionID       uuid.UUID `json:"session_id"`
	StudentName     string    `json:"student_name"`
	DurationSeconds int64     `json:"duration_seconds"`
	PagesVisited    []string  `json:"pages_visited"`
	ModulesViewed   int       `json:"modules_viewed"`
	QuizzesViewed   int       `json:"quizzes_viewed"`
	AIChatsOpened   int       `json:"ai_chats_opened"`
}

// EndResult carries the restored staff credential pair. Summary is nil when
// no session was found (idempotent success: the caller already holds a
// valid non-simulation credential).
type EndResult struct {
	Tokens  auth.TokenPair
	Summary *EndedSummary
}

// Observer receives session lifecycle notifications; wired to prometheus.
type Observer interface {
	SessionStarted()
	SessionEnded()
}

// Auditor is the fire-and-forget activity sink.
type Auditor interface {
	Record(entry audit.Entry)
}

// Service is the simulation session manager.
type Service interface {
	Start(ctx context.Context, creds *auth.Claims, input StartInput) (StartResult, error)
	End(ctx context.Context, creds *auth.Claims) (EndResult, error)
	Status(ctx context.Context, creds *auth.Claims) (simulation.Session, error)
	// TrackPageVisit and IncrementCounter are best-effort: failures are
	// logged and swallowed so they never block the simulated user's
	// primary request.
	TrackPageVisit(ctx context.Context, sessionID uuid.UUID, path string)
	IncrementCounter(ctx context.Context, sessionID uuid.UUID, counter simulation.Counter)
	CleanupStuckSessions(ctx context.Context, creds *auth.Claims) (int, error)
}

// Config wires the service dependencies.
type Config struct {
	Sessions simrepo.Repository
	Tenants  tenantsrepo.Registry
	Students studentsrepo.Store
	Issuer   *auth.Issuer
	Auditor  Auditor
	Logger   *zap.Logger
	Observer Observer
	Now      func() time.Time
}

type service struct {
	sessions simrepo.Repository
	tenants  tenantsrepo.Registry
	students studentsrepo.Store
	issuer   *auth.Issuer
	auditor  Auditor
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	resolveTenant map[auth.Role]tenantResolver
}

// tenantResolver picks the tenant a session runs against for one staff role.
type tenantResolver func(creds *auth.Claims, explicit *uuid.UUID) (uuid.UUID, error)

// New constructs the session manager.
func New(cfg Config) Service {
	if cfg.Sessions == nil {
		panic("simulation service requires session repository")
	}
	if cfg.Tenants == nil {
		panic("simulation service requires tenant registry")
	}
	if cfg.Students == nil {
		panic("simulation service requires student store")
	}
	if cfg.Issuer == nil {
		panic("simulation service requires credential issuer")
	}
	if cfg.Logger == nil {
		panic("simulation service requires logger")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &service{
		sessions: cfg.Sessions,
		tenants:  cfg.Tenants,
		students: cfg.Students,
		issuer:   cfg.Issuer,
		auditor:  cfg.Auditor,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		now:      now,
	}

	// One resolution strategy per role instead of role checks scattered
	// through the flow. The top-level admin picks a tenant explicitly;
	// school staff always act within their own tenant.
	ownTenant := func(creds *auth.Claims, explicit *uuid.UUID) (uuid.UUID, error) {
		id, err := uuid.Parse(creds.TenantID)
		if err != nil || id == uuid.Nil {
			return uuid.Nil, apperr.New(apperr.KindBadRequest, "simulation.tenant_required")
		}
		return id, nil
	}
	s.resolveTenant = map[auth.Role]tenantResolver{
		auth.RoleSuperAdmin: func(creds *auth.Claims, explicit *uuid.UUID) (uuid.UUID, error) {
			if explicit == nil || *explicit == uuid.Nil {
				return uuid.Nil, apperr.New(apperr.KindBadRequest, "simulation.tenant_required")
			}
			return *explicit, nil
		},
		auth.RoleSchoolAdmin: ownTenant,
		auth.RoleProfessor:   ownTenant,
	}

	return s
}

func (s *service) Start(ctx context.Context, creds *auth.Claims, input StartInput) (StartResult, error) {
	if !creds.Role.CanSimulate() {
		return StartResult{}, apperr.New(apperr.KindForbidden, "simulation.role_forbidden")
	}
	if creds.IsSimulation {
		return StartResult{}, apperr.New(apperr.KindAlreadySimulating, "simulation.already_simulating")
	}
	if !input.Mode.Valid() {
		return StartResult{}, apperr.New(apperr.KindBadRequest, "errors.invalid_request", "unknown simulation mode")
	}

	staffID, err := uuid.Parse(creds.Subject)
	if err != nil {
		return StartResult{}, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request")
	}

	// A leftover ACTIVE session is not an error: auto-end it so a crashed
	// client cannot wedge the staff user out of the feature.
	if _, err := s.endAllActive(ctx, staffID); err != nil {
		return StartResult{}, err
	}

	resolve, ok := s.resolveTenant[creds.Role]
	if !ok {
		return StartResult{}, apperr.New(apperr.KindForbidden, "simulation.role_forbidden")
	}
	tenantID, err := resolve(creds, input.TenantID)
	if err != nil {
		return StartResult{}, err
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantsrepo.ErrNotFound) {
			return StartResult{}, apperr.New(apperr.KindNotFound, "simulation.tenant_not_found")
		}
		return StartResult{}, fmt.Errorf("resolve tenant: %w", err)
	}

	student, err := s.students.FindByID(ctx, tenant.DatabaseName, input.StudentID)
	if err != nil {
		if errors.Is(err, studentsrepo.ErrNotFound) {
			return StartResult{}, apperr.New(apperr.KindNotFound, "simulation.student_not_found")
		}
		return StartResult{}, fmt.Errorf("resolve student: %w", err)
	}
	if student.Status == studentsrepo.StatusInactive {
		return StartResult{}, apperr.New(apperr.KindBadRequest, "simulation.student_inactive")
	}

	session := simulation.Session{
		ID:                    uuid.New(),
		OriginalUserID:        staffID,
		OriginalUserRole:      creds.Role,
		OriginalUserEmail:     creds.Email,
		SimulatedStudentID:    student.ID,
		SimulatedStudentEmail: student.Email,
		SimulatedStudentName:  student.FullName,
		TenantID:              tenant.ID,
		TenantName:            tenant.Name,
		Mode:                  input.Mode,
		Purpose:               input.Purpose,
		Status:                simulation.StatusActive,
		StartedAt:             s.now().UTC(),
		PagesVisited:          []string{},
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return StartResult{}, fmt.Errorf("create simulation session: %w", err)
	}

	tokens, err := s.issuer.IssuePair(auth.Claims{
		RegisteredClaims: registeredSubject(student.ID),
		Email:            student.Email,
		Name:             student.FullName,
		Role:             auth.RoleStudent,
		TenantID:         tenant.ID.String(),

		IsSimulation:        true,
		SimulationSessionID: session.ID.String(),
		SimulationMode:      string(input.Mode),
		OriginalUserID:      staffID.String(),
		OriginalUserRole:    creds.Role,
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("issue simulation credentials: %w", err)
	}

	s.audit(audit.Entry{
		ActivityType: activitySimulationStarted,
		ActorID:      staffID.String(),
		ActorRole:    string(creds.Role),
		TargetID:     student.ID.String(),
		Metadata: map[string]any{
			"session_id":      session.ID.String(),
			"tenant_id":       tenant.ID.String(),
			"simulation_mode": string(input.Mode),
			"purpose":         input.Purpose,
		},
	})
	if s.observer != nil {
		s.observer.SessionStarted()
	}

	s.logger.Info("simulation started",
		zap.String("session_id", session.ID.String()),
		zap.String("staff_id", staffID.String()),
		zap.String("student_id", student.ID.String()),
		zap.String("tenant", tenant.Name),
	)

	return StartResult{
		Tokens:    tokens,
		SessionID: session.ID,
		Summary: Summary{
			SessionID:    session.ID,
			StudentName:  student.FullName,
			StudentEmail: student.Email,
			TenantName:   tenant.Name,
			StartedAt:    session.StartedAt,
		},
	}, nil
}

func (s *service) End(ctx context.Context, creds *auth.Claims) (EndResult, error) {
	session, found, err := s.findSessionToEnd(ctx, creds)
	if err != nil {
		return EndResult{}, err
	}
	if !found {
		// Idempotent success: nothing to end, the caller is assumed to
		// already hold a valid non-simulation credential.
		return EndResult{}, nil
	}
	if session.Status == simulation.StatusEnded {
		return EndResult{}, apperr.New(apperr.KindInvalidState, "simulation.already_ended")
	}

	ended, err := s.endSession(ctx, &session)
	if err != nil {
		return EndResult{}, err
	}
	if !ended {
		// Lost the race: another request ended it first.
		return EndResult{}, apperr.New(apperr.KindInvalidState, "simulation.already_ended")
	}

	// The restored credential comes from the stored session row, never
	// from client-held simulation claims, so a tampered token cannot
	// escalate the original role.
	tokens, err := s.issuer.IssuePair(auth.Claims{
		RegisteredClaims: registeredSubject(session.OriginalUserID),
		Email:            session.OriginalUserEmail,
		Role:             session.OriginalUserRole,
		TenantID:         staffTenantClaim(session),
	})
	if err != nil {
		return EndResult{}, fmt.Errorf("issue staff credentials: %w", err)
	}

	if s.observer != nil {
		s.observer.SessionEnded()
	}

	return EndResult{
		Tokens: tokens,
		Summary: &EndedSummary{
			SessionID:       session.ID,
			StudentName:     session.SimulatedStudentName,
			DurationSeconds: *session.DurationSeconds,
			PagesVisited:    session.PagesVisited,
			ModulesViewed:   session.ModulesViewed,
			QuizzesViewed:   session.QuizzesViewed,
			AIChatsOpened:   session.AIChatsOpened,
		},
	}, nil
}

func (s *service) Status(ctx context.Context, creds *auth.Claims) (simulation.Session, error) {
	if creds.IsSimulation && creds.SimulationSessionID != "" {
		id, err := uuid.Parse(creds.SimulationSessionID)
		if err != nil {
			return simulation.Session{}, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request")
		}
		session, err := s.sessions.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, simrepo.ErrNotFound) {
				return simulation.Session{}, apperr.New(apperr.KindNotFound, "simulation.session_not_found")
			}
			return simulation.Session{}, err
		}
		return session, nil
	}

	staffID, err := uuid.Parse(creds.Subject)
	if err != nil {
		return simulation.Session{}, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request")
	}
	session, err := s.sessions.FindLatestActiveByUser(ctx, staffID)
	if err != nil {
		if errors.Is(err, simrepo.ErrNotFound) {
			return simulation.Session{}, apperr.New(apperr.KindNotFound, "simulation.session_not_found")
		}
		return simulation.Session{}, err
	}
	return session, nil
}

func (s *service) TrackPageVisit(ctx context.Context, sessionID uuid.UUID, path string) {
	if path == "" {
		return
	}
	if err := s.sessions.AddPageVisit(ctx, sessionID, path); err != nil {
		s.logger.Warn("track page visit failed",
			zap.String("session_id", sessionID.String()),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func (s *service) IncrementCounter(ctx context.Context, sessionID uuid.UUID, counter simulation.Counter) {
	if !counter.Valid() {
		s.logger.Warn("unknown activity counter", zap.String("counter", string(counter)))
		return
	}
	if err := s.sessions.IncrementCounter(ctx, sessionID, counter); err != nil {
		s.logger.Warn("increment activity counter failed",
			zap.String("session_id", sessionID.String()),
			zap.String("counter", string(counter)),
			zap.Error(err),
		)
	}
}

func (s *service) CleanupStuckSessions(ctx context.Context, creds *auth.Claims) (int, error) {
	staffID, err := uuid.Parse(creds.Subject)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request")
	}

	count, err := s.endAllActive(ctx, staffID)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.audit(audit.Entry{
			ActivityType: activitySimulationCleanup,
			ActorID:      staffID.String(),
			ActorRole:    string(creds.Role),
			Metadata:     map[string]any{"sessions_ended": count},
		})
	}
	return count, nil
}

// findSessionToEnd resolves the session via the credential's session
// reference, falling back to the most recent ACTIVE session for staff
// callers that lost the simulation token.
func (s *service) findSessionToEnd(ctx context.Context, creds *auth.Claims) (simulation.Session, bool, error) {
	if creds.IsSimulation && creds.SimulationSessionID != "" {
		id, err := uuid.Parse(creds.SimulationSessionID)
		if err != nil {
			return simulation.Session{}, false, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request")
		}
		session, err := s.sessions.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, simrepo.ErrNotFound) {
				return simulation.Session{}, false, nil
			}
			return simulation.Session{}, false, err
		}
		return session, true, nil
	}

	staffID, err := uuid.Parse(creds.Subject)
	if err != nil {
		return simulation.Session{}, false, apperr.Wrap(err, apperr.KindBadRequest, "errors.invalid_request")
	}
	session, err := s.sessions.FindLatestActiveByUser(ctx, staffID)
	if err != nil {
		if errors.Is(err, simrepo.ErrNotFound) {
			return simulation.Session{}, false, nil
		}
		return simulation.Session{}, false, err
	}
	return session, true, nil
}

// endSession performs the conditional ACTIVE -> ENDED transition and, when
// this call won the transition, emits the audit entry and refreshes the
// in-memory copy's end fields.
func (s *service) endSession(ctx context.Context, session *simulation.Session) (bool, error) {
	endedAt := s.now().UTC()
	duration := int64(endedAt.Sub(session.StartedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}

	ended, err := s.sessions.EndIfActive(ctx, session.ID, endedAt, duration)
	if err != nil {
		return false, err
	}
	if !ended {
		return false, nil
	}

	session.Status = simulation.StatusEnded
	session.EndedAt = &endedAt
	session.DurationSeconds = &duration

	s.audit(audit.Entry{
		ActivityType: activitySimulationEnded,
		ActorID:      session.OriginalUserID.String(),
		ActorRole:    string(session.OriginalUserRole),
		TargetID:     session.SimulatedStudentID.String(),
		Metadata: map[string]any{
			"session_id":       session.ID.String(),
			"duration_seconds": duration,
			"pages_visited":    session.PagesVisited,
			"modules_viewed":   session.ModulesViewed,
			"quizzes_viewed":   session.QuizzesViewed,
			"ai_chats_opened":  session.AIChatsOpened,
		},
	})

	s.logger.Info("simulation ended",
		zap.String("session_id", session.ID.String()),
		zap.Int64("duration_seconds", duration),
	)
	return true, nil
}

// endAllActive ends every ACTIVE session of the staff user, returning how
// many this call actually transitioned.
func (s *service) endAllActive(ctx context.Context, staffID uuid.UUID) (int, error) {
	active, err := s.sessions.FindActiveByUser(ctx, staffID)
	if err != nil {
		return 0, fmt.Errorf("find active sessions: %w", err)
	}

	count := 0
	for i := range active {
		ended, err := s.endSession(ctx, &active[i])
		if err != nil {
			return count, err
		}
		if ended {
			count++
			if s.observer != nil {
				s.observer.SessionEnded()
			}
		}
	}
	return count, nil
}

func (s *service) audit(entry audit.Entry) {
	if s.auditor != nil {
		s.auditor.Record(entry)
	}
}

func registeredSubject(id uuid.UUID) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: id.String()}
}

// staffTenantClaim restores the tenant claim for school staff; the
// top-level admin carries none.
func staffTenantClaim(session simulation.Session) string {
	if session.OriginalUserRole == auth.RoleSuperAdmin {
		return ""
	}
	return session.TenantID.String()
}
