package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/auth"
)

// ErrNotFound is returned when no session matches the lookup.
var ErrNotFound = errors.New("simulation session not found")

// Repository persists simulation sessions in the central database.
type Repository interface {
	Create(ctx context.Context, session simulation.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (simulation.Session, error)
	// FindLatestActiveByUser returns the most recent ACTIVE session for the
	// staff user, ordered by started_at descending.
	FindLatestActiveByUser(ctx context.Context, userID uuid.UUID) (simulation.Session, error)
	FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]simulation.Session, error)
	// EndIfActive transitions the session to ENDED only if it is currently
	// ACTIVE, setting ended_at and duration_seconds together. It reports
	// whether this call performed the transition; false means someone else
	// already handled it.
	EndIfActive(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSeconds int64) (bool, error)
	// AddPageVisit is an idempotent set-add into pages_visited.
	AddPageVisit(ctx context.Context, id uuid.UUID, path string) error
	// IncrementCounter atomically adds one to the named counter.
	IncrementCounter(ctx context.Context, id uuid.UUID, counter simulation.Counter) error
}

// db is the minimal central-database surface; satisfied by *pgxpool.Pool.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository stores sessions in the central simulation_sessions table.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository builds a repository over the central database.
func NewPostgresRepository(database db) *PostgresRepository {
	if database == nil {
		panic("simulation repository requires database")
	}
	return &PostgresRepository{db: database}
}

const sessionColumns = `session_id, original_user_id, original_user_role, original_user_email,
    simulated_student_id, simulated_student_email, simulated_student_name,
    tenant_id, tenant_name, simulation_mode, purpose, status,
    started_at, ended_at, duration_seconds, pages_visited,
    modules_viewed, quizzes_viewed, ai_chats_opened`

func (r *PostgresRepository) Create(ctx context.Context, s simulation.Session) error {
	const insert = `INSERT INTO simulation_sessions (` + sessionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	pages := s.PagesVisited
	if pages == nil {
		pages = []string{}
	}

	_, err := r.db.Exec(ctx, insert,
		s.ID, s.OriginalUserID, string(s.OriginalUserRole), s.OriginalUserEmail,
		s.SimulatedStudentID, s.SimulatedStudentEmail, s.SimulatedStudentName,
		s.TenantID, s.TenantName, string(s.Mode), s.Purpose, string(s.Status),
		s.StartedAt, s.EndedAt, s.DurationSeconds, pages,
		s.ModulesViewed, s.QuizzesViewed, s.AIChatsOpened,
	)
	if err != nil {
		return fmt.Errorf("insert simulation session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (simulation.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM simulation_sessions WHERE session_id = $1`
	return scanSession(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) FindLatestActiveByUser(ctx context.Context, userID uuid.UUID) (simulation.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM simulation_sessions
        WHERE original_user_id = $1 AND status = 'ACTIVE'
        ORDER BY started_at DESC
        LIMIT 1`
	return scanSession(r.db.QueryRow(ctx, query, userID))
}

func (r *PostgresRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]simulation.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM simulation_sessions
        WHERE original_user_id = $1 AND status = 'ACTIVE'
        ORDER BY started_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []simulation.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *PostgresRepository) EndIfActive(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSeconds int64) (bool, error) {
	const update = `UPDATE simulation_sessions
        SET status = 'ENDED', ended_at = $2, duration_seconds = $3
        WHERE session_id = $1 AND status = 'ACTIVE'`

	tag, err := r.db.Exec(ctx, update, id, endedAt, durationSeconds)
	if err != nil {
		return false, fmt.Errorf("end simulation session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) AddPageVisit(ctx context.Context, id uuid.UUID, path string) error {
	const update = `UPDATE simulation_sessions
        SET pages_visited = array_append(pages_visited, $2)
        WHERE session_id = $1 AND status = 'ACTIVE' AND NOT ($2 = ANY(pages_visited))`

	_, err := r.db.Exec(ctx, update, id, path)
	return err
}

func (r *PostgresRepository) IncrementCounter(ctx context.Context, id uuid.UUID, counter simulation.Counter) error {
	if !counter.Valid() {
		return fmt.Errorf("unknown counter %q", counter)
	}

	// Column name comes from the validated enum, never from user input.
	update := fmt.Sprintf(`UPDATE simulation_sessions
        SET %[1]s = %[1]s + 1
        WHERE session_id = $1 AND status = 'ACTIVE'`, string(counter))

	_, err := r.db.Exec(ctx, update, id)
	return err
}

func scanSession(row pgx.Row) (simulation.Session, error) {
	var (
		s    simulation.Session
		role string
		mode string
		stat string
	)
	err := row.Scan(
		&s.ID, &s.OriginalUserID, &role, &s.OriginalUserEmail,
		&s.SimulatedStudentID, &s.SimulatedStudentEmail, &s.SimulatedStudentName,
		&s.TenantID, &s.TenantName, &mode, &s.Purpose, &stat,
		&s.StartedAt, &s.EndedAt, &s.DurationSeconds, &s.PagesVisited,
		&s.ModulesViewed, &s.QuizzesViewed, &s.AIChatsOpened,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return simulation.Session{}, ErrNotFound
		}
		return simulation.Session{}, err
	}
	s.OriginalUserRole = auth.Role(role)
	s.Mode = simulation.Mode(mode)
	s.Status = simulation.Status(stat)
	return s, nil
}
