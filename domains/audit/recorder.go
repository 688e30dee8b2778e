package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spaceboi21/ai-professor-backend-sub006/platform/task"
)

// Entry is one activity-log record.
type Entry struct {
	ActivityType string
	ActorID      string
	ActorRole    string
	TargetID     string
	Metadata     map[string]any
}

// execer is the minimal central-database surface; satisfied by *pgxpool.Pool.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder writes activity-log entries to the central database as detached
// best-effort tasks. Record never blocks the caller and never fails it:
// a lost audit entry must not abort the user-visible operation.
type Recorder struct {
	db    execer
	tasks *task.Runner
	now   func() time.Time
}

// NewRecorder builds a Recorder over the central database.
func NewRecorder(db execer, tasks *task.Runner) *Recorder {
	if db == nil {
		panic("audit recorder requires database")
	}
	if tasks == nil {
		panic("audit recorder requires task runner")
	}
	return &Recorder{db: db, tasks: tasks, now: time.Now}
}

// Record schedules the insert and returns immediately.
func (r *Recorder) Record(entry Entry) {
	recordedAt := r.now().UTC()

	r.tasks.Go("audit-record", func(ctx context.Context) error {
		metadata, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		if entry.Metadata == nil {
			metadata = []byte("{}")
		}

		const insert = `INSERT INTO activity_log
            (log_id, activity_type, actor_id, actor_role, target_id, metadata, recorded_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`

		_, err = r.db.Exec(ctx, insert,
			uuid.New(), entry.ActivityType, entry.ActorID, entry.ActorRole, entry.TargetID, metadata, recordedAt,
		)
		if err != nil {
			return fmt.Errorf("insert activity log: %w", err)
		}
		return nil
	})
}
