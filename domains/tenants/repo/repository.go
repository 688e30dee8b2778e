package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantRecord is one row of the central tenant registry. Provisioning is
// owned elsewhere; this subsystem only reads.
type TenantRecord struct {
	ID           uuid.UUID
	Name         string
	DatabaseName string
	Status       string
}

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ErrNotFound is returned when no live tenant matches the lookup.
var ErrNotFound = errors.New("tenant not found")

// Registry is the read-only tenant lookup used by tenant-scoped operations.
type Registry interface {
	FindByID(ctx context.Context, id uuid.UUID) (TenantRecord, error)
}

// rowQuerier is the minimal central-database surface needed here; satisfied
// by *pgxpool.Pool.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRegistry reads the central tenants table.
type PostgresRegistry struct {
	db rowQuerier
}

// NewPostgresRegistry builds a registry over the central database.
func NewPostgresRegistry(db rowQuerier) *PostgresRegistry {
	if db == nil {
		panic("tenant registry requires database")
	}
	return &PostgresRegistry{db: db}
}

// FindByID returns the tenant when present and not soft-deleted.
func (r *PostgresRegistry) FindByID(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	const query = `SELECT tenant_id, name, database_name, status
        FROM tenants
        WHERE tenant_id = $1 AND deleted_at IS NULL`

	var rec TenantRecord
	err := r.db.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.Name, &rec.DatabaseName, &rec.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// MemoryRegistry is an in-memory Registry for tests and local tooling.
type MemoryRegistry struct {
	tenants map[uuid.UUID]TenantRecord
}

// NewMemoryRegistry seeds an in-memory registry.
func NewMemoryRegistry(tenants ...TenantRecord) *MemoryRegistry {
	m := &MemoryRegistry{tenants: make(map[uuid.UUID]TenantRecord, len(tenants))}
	for _, t := range tenants {
		m.tenants[t.ID] = t
	}
	return m
}

func (m *MemoryRegistry) FindByID(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	rec, ok := m.tenants[id]
	if !ok {
		return TenantRecord{}, ErrNotFound
	}
	return rec, nil
}
