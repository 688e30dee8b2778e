package migrate

import (
	"context"

	sqlassets "github.com/spaceboi21/ai-professor-backend-sub006/database"
)

// Registry is the full ordered set of migration units. New units are
// appended here with a fresh timestamp; nothing else needs to change.
func Registry() []Migration {
	return []Migration{
		{
			Name: "create_tenants",
			Seq:  20240101120000,
			Type: TypeCentral,
			Up: func(ctx context.Context, db DB) error {
				return execStatements(ctx, db, sqlassets.TenantsSQL)
			},
		},
		{
			Name: "create_simulation_sessions",
			Seq:  20240108090000,
			Type: TypeCentral,
			Up: func(ctx context.Context, db DB) error {
				return execStatements(ctx, db, sqlassets.SimulationSessionsSQL)
			},
		},
		{
			Name: "create_activity_log",
			Seq:  20240115143000,
			Type: TypeCentral,
			Up: func(ctx context.Context, db DB) error {
				return execStatements(ctx, db, sqlassets.ActivityLogSQL)
			},
		},
		{
			Name: "create_students",
			Seq:  20240101120500,
			Type: TypeTenant,
			Up: func(ctx context.Context, db DB) error {
				return execStatements(ctx, db, sqlassets.StudentsSQL)
			},
		},
		{
			Name: "add_student_email_index",
			Seq:  20240201101500,
			Type: TypeTenant,
			Up: func(ctx context.Context, db DB) error {
				return execStatements(ctx, db, sqlassets.StudentIndexesSQL)
			},
		},
	}
}
