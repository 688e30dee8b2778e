package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spaceboi21/ai-professor-backend-sub006/platform/persistence"
)

// StudentRecord is the projection of a tenant student needed by staff
// tooling: identity plus activation status. Email is the decrypted
// projection; encryption at rest is handled by the student CRUD layer.
type StudentRecord struct {
	ID       uuid.UUID
	FullName string
	Email    string
	Status   string
}

const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// ErrNotFound is returned when the student is absent or soft-deleted.
var ErrNotFound = errors.New("student not found")

// Store looks up students inside a tenant's database.
type Store interface {
	FindByID(ctx context.Context, databaseName string, id uuid.UUID) (StudentRecord, error)
}

// PostgresStore resolves the tenant connection through the shared pool cache
// on every call, so it serves any tenant without per-tenant wiring.
type PostgresStore struct {
	pools *persistence.TenantPools
}

// NewPostgresStore builds a Store over the tenant pool cache.
func NewPostgresStore(pools *persistence.TenantPools) *PostgresStore {
	if pools == nil {
		panic("student store requires tenant pools")
	}
	return &PostgresStore{pools: pools}
}

// FindByID returns the student when present and not soft-deleted. The
// caller decides what an INACTIVE status means for its operation.
func (s *PostgresStore) FindByID(ctx context.Context, databaseName string, id uuid.UUID) (StudentRecord, error) {
	pool, err := s.pools.Get(ctx, databaseName)
	if err != nil {
		return StudentRecord{}, err
	}

	const query = `SELECT student_id, full_name, email, status
        FROM students
        WHERE student_id = $1 AND deleted_at IS NULL`

	var rec StudentRecord
	err = pool.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.FullName, &rec.Email, &rec.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StudentRecord{}, ErrNotFound
		}
		return StudentRecord{}, err
	}
	return rec, nil
}

// MemoryStore is an in-memory Store for tests, keyed by database name.
type MemoryStore struct {
	students map[string]map[uuid.UUID]StudentRecord
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{students: make(map[string]map[uuid.UUID]StudentRecord)}
}

// Add seeds a student into a tenant database.
func (m *MemoryStore) Add(databaseName string, rec StudentRecord) {
	if m.students[databaseName] == nil {
		m.students[databaseName] = make(map[uuid.UUID]StudentRecord)
	}
	m.students[databaseName][rec.ID] = rec
}

func (m *MemoryStore) FindByID(ctx context.Context, databaseName string, id uuid.UUID) (StudentRecord, error) {
	rec, ok := m.students[databaseName][id]
	if !ok {
		return StudentRecord{}, ErrNotFound
	}
	return rec, nil
}
