package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spaceboi21/ai-professor-backend-sub006/domains/audit"
	"github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation"
	simrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation/repo"
	studentsrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/students/repo"
	tenantsrepo "github.com/spaceboi21/ai-professor-backend-sub006/domains/tenants/repo"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/apperr"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
)

type capturingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (c *capturingAuditor) Record(entry audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *capturingAuditor) byType(activityType string) []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audit.Entry
	for _, e := range c.entries {
		if e.ActivityType == activityType {
			out = append(out, e)
		}
	}
	return out
}

type countingObserver struct {
	started int
	ended   int
}

func (c *countingObserver) SessionStarted() { c.started++ }
func (c *countingObserver) SessionEnded()   { c.ended++ }

type fixture struct {
	service  Service
	sessions *simrepo.MemoryRepository
	issuer   *auth.Issuer
	auditor  *capturingAuditor
	observer *countingObserver
	clock    *fakeClock

	tenantID  uuid.UUID
	studentID uuid.UUID
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tenantID := uuid.New()
	studentID := uuid.New()

	tenants := tenantsrepo.NewMemoryRegistry(tenantsrepo.TenantRecord{
		ID:           tenantID,
		Name:         "Springfield Medical School",
		DatabaseName: "school_springfield",
		Status:       tenantsrepo.StatusActive,
	})

	students := studentsrepo.NewMemoryStore()
	students.Add("school_springfield", studentsrepo.StudentRecord{
		ID:       studentID,
		FullName: "Lisa Simpson",
		Email:    "lisa@springfield.edu",
		Status:   studentsrepo.StatusActive,
	})

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:    "test-secret",
		Issuer:    "ai-professor",
		AccessTTL: time.Hour,
	})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	issuer.Now = clock.Now

	sessions := simrepo.NewMemoryRepository()
	auditor := &capturingAuditor{}
	observer := &countingObserver{}

	svc := New(Config{
		Sessions: sessions,
		Tenants:  tenants,
		Students: students,
		Issuer:   issuer,
		Auditor:  auditor,
		Logger:   zap.NewNop(),
		Observer: observer,
		Now:      clock.Now,
	})

	return &fixture{
		service:   svc,
		sessions:  sessions,
		issuer:    issuer,
		auditor:   auditor,
		observer:  observer,
		clock:     clock,
		tenantID:  tenantID,
		studentID: studentID,
	}
}

func professorClaims(tenantID uuid.UUID) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
		Email:            "prof@springfield.edu",
		Role:             auth.RoleProfessor,
		TenantID:         tenantID.String(),
	}
}

func superAdminClaims() *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
		Email:            "root@ai-professor.io",
		Role:             auth.RoleSuperAdmin,
	}
}

func TestStartIssuesStudentScopedCredentials(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)

	result, err := f.service.Start(context.Background(), creds, StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
		Purpose:   "support ticket 4821",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.Equal(t, "Lisa Simpson", result.Summary.StudentName)
	require.Equal(t, "Springfield Medical School", result.Summary.TenantName)

	parsed, err := f.issuer.Parse(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.True(t, parsed.IsSimulation)
	require.Equal(t, auth.RoleStudent, parsed.Role)
	require.Equal(t, f.studentID.String(), parsed.Subject)
	require.Equal(t, creds.Subject, parsed.OriginalUserID)
	require.Equal(t, auth.RoleProfessor, parsed.OriginalUserRole)
	require.Equal(t, result.SessionID.String(), parsed.SimulationSessionID)
	require.Equal(t, string(simulation.ModeReadOnly), parsed.SimulationMode)
	require.Equal(t, f.tenantID.String(), parsed.TenantID)

	require.Equal(t, 1, f.observer.started)
	require.Len(t, f.auditor.byType("SIMULATION_STARTED"), 1)
}

func TestStartRejectsStudentRole(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)
	creds.Role = auth.RoleStudent

	_, err := f.service.Start(context.Background(), creds, StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.Error(t, err)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestStartRejectsNestedSimulation(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)
	creds.IsSimulation = true
	creds.SimulationSessionID = uuid.New().String()

	_, err := f.service.Start(context.Background(), creds, StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.Error(t, err)
	require.Equal(t, apperr.KindAlreadySimulating, apperr.KindOf(err))
}

func TestStartAutoEndsPreviousSession(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)
	ctx := context.Background()

	first, err := f.service.Start(ctx, creds, StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)

	second, err := f.service.Start(ctx, creds, StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeDummyStudent,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)

	old, err := f.sessions.GetByID(ctx, first.SessionID)
	require.NoError(t, err)
	require.Equal(t, simulation.StatusEnded, old.Status)
	require.NotNil(t, old.DurationSeconds)
	require.Equal(t, int64(300), *old.DurationSeconds)

	staffID := uuid.MustParse(creds.Subject)
	active, err := f.sessions.FindActiveByUser(ctx, staffID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, second.SessionID, active[0].ID)
}

func TestStartSuperAdminRequiresExplicitTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Start(ctx, superAdminClaims(), StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.Error(t, err)
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	key, _ := apperr.MessageKeyOf(err)
	require.Equal(t, "simulation.tenant_required", key)

	result, err := f.service.Start(ctx, superAdminClaims(), StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
		TenantID:  &f.tenantID,
	})
	require.NoError(t, err)
	require.Equal(t, "Lisa Simpson", result.Summary.StudentName)
}

func TestStartUnknownTenantAndStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missingTenant := uuid.New()
	_, err := f.service.Start(ctx, superAdminClaims(), StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
		TenantID:  &missingTenant,
	})
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	key, _ := apperr.MessageKeyOf(err)
	require.Equal(t, "simulation.tenant_not_found", key)

	_, err = f.service.Start(ctx, professorClaims(f.tenantID), StartInput{
		StudentID: uuid.New(),
		Mode:      simulation.ModeReadOnly,
	})
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	key, _ = apperr.MessageKeyOf(err)
	require.Equal(t, "simulation.student_not_found", key)
}

func TestStartRejectsInactiveStudent(t *testing.T) {
	f := newFixture(t)

	students := studentsrepo.NewMemoryStore()
	inactive := uuid.New()
	students.Add("school_springfield", studentsrepo.StudentRecord{
		ID:       inactive,
		FullName: "Dropped Out",
		Email:    "gone@springfield.edu",
		Status:   studentsrepo.StatusInactive,
	})

	svc := New(Config{
		Sessions: f.sessions,
		Tenants: tenantsrepo.NewMemoryRegistry(tenantsrepo.TenantRecord{
			ID:           f.tenantID,
			Name:         "Springfield Medical School",
			DatabaseName: "school_springfield",
		}),
		Students: students,
		Issuer:   f.issuer,
		Logger:   zap.NewNop(),
		Now:      f.clock.Now,
	})

	_, err := svc.Start(context.Background(), professorClaims(f.tenantID), StartInput{
		StudentID: inactive,
		Mode:      simulation.ModeReadOnly,
	})
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	key, _ := apperr.MessageKeyOf(err)
	require.Equal(t, "simulation.student_inactive", key)
}

func TestEndRestoresStaffCredentials(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)
	ctx := context.Background()

	started, err := f.service.Start(ctx, creds, StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.NoError(t, err)

	f.service.TrackPageVisit(ctx, started.SessionID, "/modules/anatomy")
	f.service.IncrementCounter(ctx, started.SessionID, simulation.CounterModulesViewed)
	f.service.IncrementCounter(ctx, started.SessionID, simulation.CounterAIChatsOpened)

	f.clock.Advance(90 * time.Second)

	simClaims, err := f.issuer.Parse(started.Tokens.AccessToken)
	require.NoError(t, err)

	result, err := f.service.End(ctx, simClaims)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	require.Equal(t, int64(90), result.Summary.DurationSeconds)
	require.Equal(t, []string{"/modules/anatomy"}, result.Summary.PagesVisited)
	require.Equal(t, 1, result.Summary.ModulesViewed)
	require.Equal(t, 1, result.Summary.AIChatsOpened)

	restored, err := f.issuer.Parse(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.False(t, restored.IsSimulation)
	require.Equal(t, creds.Subject, restored.Subject)
	require.Equal(t, auth.RoleProfessor, restored.Role)
	require.Equal(t, f.tenantID.String(), restored.TenantID)

	require.Equal(t, 1, f.observer.ended)
	require.Len(t, f.auditor.byType("SIMULATION_ENDED"), 1)
}

func TestEndWithoutSessionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)

	result, err := f.service.End(context.Background(), creds)
	require.NoError(t, err)
	require.Nil(t, result.Summary)
	require.Empty(t, result.Tokens.AccessToken)
}

func TestEndTwiceConflictsOnDirectReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.service.Start(ctx, professorClaims(f.tenantID), StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.NoError(t, err)

	simClaims, err := f.issuer.Parse(started.Tokens.AccessToken)
	require.NoError(t, err)

	_, err = f.service.End(ctx, simClaims)
	require.NoError(t, err)

	// Same simulation token replayed: the session row is already ENDED.
	_, err = f.service.End(ctx, simClaims)
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	key, _ := apperr.MessageKeyOf(err)
	require.Equal(t, "simulation.already_ended", key)
}

func TestEndFromStaffCredentialFindsLatestActive(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)
	ctx := context.Background()

	started, err := f.service.Start(ctx, creds, StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.NoError(t, err)

	// Staff token (no session reference): fallback lookup by user.
	result, err := f.service.End(ctx, creds)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	require.Equal(t, started.SessionID, result.Summary.SessionID)

	// Second staff-credential end finds nothing: idempotent success.
	again, err := f.service.End(ctx, creds)
	require.NoError(t, err)
	require.Nil(t, again.Summary)
}

func TestEndForSuperAdminOmitsTenantClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.service.Start(ctx, superAdminClaims(), StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
		TenantID:  &f.tenantID,
	})
	require.NoError(t, err)

	simClaims, err := f.issuer.Parse(started.Tokens.AccessToken)
	require.NoError(t, err)

	result, err := f.service.End(ctx, simClaims)
	require.NoError(t, err)

	restored, err := f.issuer.Parse(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, auth.RoleSuperAdmin, restored.Role)
	require.Empty(t, restored.TenantID)
}

func TestStatusUnderSimulationAndAsStaff(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)
	ctx := context.Background()

	_, err := f.service.Status(ctx, creds)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	started, err := f.service.Start(ctx, creds, StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.NoError(t, err)

	fromStaff, err := f.service.Status(ctx, creds)
	require.NoError(t, err)
	require.Equal(t, started.SessionID, fromStaff.ID)

	simClaims, err := f.issuer.Parse(started.Tokens.AccessToken)
	require.NoError(t, err)
	fromSim, err := f.service.Status(ctx, simClaims)
	require.NoError(t, err)
	require.Equal(t, started.SessionID, fromSim.ID)
	require.True(t, fromSim.Active())
}

func TestTrackingIsIdempotentAndBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.service.Start(ctx, professorClaims(f.tenantID), StartInput{
		StudentID: f.studentID,
		Mode:      simulation.ModeReadOnly,
	})
	require.NoError(t, err)

	f.service.TrackPageVisit(ctx, started.SessionID, "/quizzes/1")
	f.service.TrackPageVisit(ctx, started.SessionID, "/quizzes/1")
	f.service.TrackPageVisit(ctx, started.SessionID, "")
	f.service.IncrementCounter(ctx, started.SessionID, simulation.Counter("bogus"))
	f.service.IncrementCounter(ctx, started.SessionID, simulation.CounterQuizzesViewed)

	// Unknown session is swallowed, never surfaced.
	f.service.TrackPageVisit(ctx, uuid.New(), "/anywhere")

	session, err := f.sessions.GetByID(ctx, started.SessionID)
	require.NoError(t, err)
	require.Equal(t, []string{"/quizzes/1"}, session.PagesVisited)
	require.Equal(t, 1, session.QuizzesViewed)
	require.Equal(t, 0, session.ModulesViewed)
}

func TestCleanupStuckSessionsEndsAllActive(t *testing.T) {
	f := newFixture(t)
	creds := professorClaims(f.tenantID)
	ctx := context.Background()
	staffID := uuid.MustParse(creds.Subject)

	// Seed two ACTIVE rows directly, as if a crash left them behind.
	for i := 0; i < 2; i++ {
		require.NoError(t, f.sessions.Create(ctx, simulation.Session{
			ID:                 uuid.New(),
			OriginalUserID:     staffID,
			OriginalUserRole:   auth.RoleProfessor,
			SimulatedStudentID: f.studentID,
			TenantID:           f.tenantID,
			Mode:               simulation.ModeReadOnly,
			Status:             simulation.StatusActive,
			StartedAt:          f.clock.Now().Add(-time.Duration(i+1) * time.Hour),
		}))
	}

	count, err := f.service.CleanupStuckSessions(ctx, creds)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	active, err := f.sessions.FindActiveByUser(ctx, staffID)
	require.NoError(t, err)
	require.Empty(t, active)
	require.Len(t, f.auditor.byType("SIMULATION_CLEANUP"), 1)

	// Nothing left: cleanup reports zero.
	count, err = f.service.CleanupStuckSessions(ctx, creds)
	require.NoError(t, err)
	require.Zero(t, count)
}
