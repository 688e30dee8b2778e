package migrate

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Type selects which migration set a unit belongs to.
type Type string

const (
	TypeCentral Type = "central"
	TypeTenant  Type = "tenant"
)

// DB is the minimal connection surface a migration unit runs against.
// Satisfied by *pgxpool.Pool and by test fakes.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migration is one statically-registered unit. Units are compiled into the
// binary; there is no runtime directory scanning or dynamic loading.
type Migration struct {
	// Name uniquely identifies the unit within its type.
	Name string
	// Seq is the unit's creation timestamp (yyyymmddhhmmss); units execute
	// in ascending Seq order.
	Seq int64
	// Type routes the unit to the central or tenant databases.
	Type Type
	// Up applies the unit.
	Up func(ctx context.Context, db DB) error
}

// execStatements applies each statement of an embedded SQL asset in order.
func execStatements(ctx context.Context, db DB, asset string) error {
	for _, stmt := range splitStatements(asset) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements breaks an embedded SQL asset into executable statements.
// Assets hold plain DDL without procedural bodies, so splitting on ';' is
// sufficient.
func splitStatements(asset string) []string {
	var statements []string
	for _, part := range strings.Split(asset, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
