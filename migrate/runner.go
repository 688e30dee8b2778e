package migrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const trackerDDL = `
CREATE TABLE IF NOT EXISTS migration_tracker (
    migration_name    TEXT NOT NULL,
    migration_type    TEXT NOT NULL,
    tenant_db_name    TEXT NOT NULL DEFAULT '',
    executed_at       TIMESTAMPTZ NOT NULL,
    execution_time_ms BIGINT NOT NULL,
    success           BOOLEAN NOT NULL,
    error_message     TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_migration_tracker_success
    ON migration_tracker (migration_name, migration_type, tenant_db_name)
    WHERE success`

// TenantDBFunc resolves the connection for a tenant database name; wired to
// the tenant pool cache in production.
type TenantDBFunc func(ctx context.Context, databaseName string) (DB, error)

// Observer receives per-unit outcomes; wired to prometheus in production.
type Observer func(typ Type, outcome string)

// RunnerConfig wires the runner's dependencies.
type RunnerConfig struct {
	Registry []Migration
	Central  DB
	TenantDB TenantDBFunc
	Logger   *zap.Logger
	Observer Observer
	Now      func() time.Time
}

// Runner executes pending migration units against a target, records every
// attempt in the target's migration_tracker, and halts the run on the first
// failure. Units with a recorded success are never re-executed, so running
// the same target twice is safe.
type Runner struct {
	registry []Migration
	central  DB
	tenantDB TenantDBFunc
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// Result summarizes one run.
type Result struct {
	Executed int
	Skipped  int
	// Failed holds the name of the unit that halted the run, if any.
	Failed string
}

// NewRunner builds a Runner; Registry, Central and Logger are required.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Central == nil {
		panic("migration runner requires central DB")
	}
	if cfg.Logger == nil {
		panic("migration runner requires logger")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Runner{
		registry: cfg.Registry,
		central:  cfg.Central,
		tenantDB: cfg.TenantDB,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		now:      now,
	}
}

// Run executes the pending units of one type against one target. tenantDB
// is required for TypeTenant and ignored for TypeCentral. A non-nil error
// means at least one unit failed or the target could not be resolved.
func (r *Runner) Run(ctx context.Context, typ Type, tenantDB string) (Result, error) {
	switch typ {
	case TypeCentral, TypeTenant:
	default:
		return Result{}, fmt.Errorf("unknown migration type %q", typ)
	}

	target := r.central
	tenantName := ""
	if typ == TypeTenant {
		if tenantDB == "" {
			return Result{}, fmt.Errorf("tenant migrations require a database name")
		}
		if r.tenantDB == nil {
			return Result{}, fmt.Errorf("no tenant database resolver configured")
		}
		resolved, err := r.tenantDB(ctx, tenantDB)
		if err != nil {
			return Result{}, fmt.Errorf("resolve tenant database %q: %w", tenantDB, err)
		}
		target = resolved
		tenantName = tenantDB
	}

	if err := r.ensureTracker(ctx, target); err != nil {
		return Result{}, fmt.Errorf("ensure migration tracker: %w", err)
	}

	units := r.unitsOf(typ)
	var res Result

	for _, unit := range units {
		done, err := r.hasSucceeded(ctx, target, unit.Name, typ, tenantName)
		if err != nil {
			return res, fmt.Errorf("check migration %q: %w", unit.Name, err)
		}
		if done {
			res.Skipped++
			continue
		}

		start := r.now()
		upErr := unit.Up(ctx, target)
		elapsed := r.now().Sub(start)

		if recErr := r.record(ctx, target, unit, typ, tenantName, start, elapsed, upErr); recErr != nil {
			r.logger.Error("record migration outcome",
				zap.String("migration", unit.Name),
				zap.Error(recErr),
			)
		}

		if upErr != nil {
			res.Failed = unit.Name
			r.observe(typ, "failure")
			r.logger.Error("migration failed, halting run",
				zap.String("migration", unit.Name),
				zap.String("type", string(typ)),
				zap.Error(upErr),
			)
			return res, fmt.Errorf("migration %q: %w", unit.Name, upErr)
		}

		res.Executed++
		r.observe(typ, "success")
		r.logger.Info("migration applied",
			zap.String("migration", unit.Name),
			zap.String("type", string(typ)),
			zap.Duration("elapsed", elapsed),
		)
	}

	return res, nil
}

// RunAll runs central migrations first; when any central unit fails, tenant
// migrations are skipped entirely. The named tenant's migrations run only
// after a fully-successful central pass.
func (r *Runner) RunAll(ctx context.Context, tenantDB string) (Result, error) {
	central, err := r.Run(ctx, TypeCentral, "")
	if err != nil {
		r.logger.Warn("central migrations failed, skipping tenant migrations")
		return central, err
	}

	if tenantDB == "" {
		return central, nil
	}

	tenant, err := r.Run(ctx, TypeTenant, tenantDB)
	combined := Result{
		Executed: central.Executed + tenant.Executed,
		Skipped:  central.Skipped + tenant.Skipped,
		Failed:   tenant.Failed,
	}
	return combined, err
}

func (r *Runner) unitsOf(typ Type) []Migration {
	var units []Migration
	for _, unit := range r.registry {
		if unit.Type == typ {
			units = append(units, unit)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Seq < units[j].Seq })
	return units
}

func (r *Runner) ensureTracker(ctx context.Context, db DB) error {
	for _, stmt := range splitStatements(trackerDDL) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) hasSucceeded(ctx context.Context, db DB, name string, typ Type, tenantDB string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM migration_tracker
        WHERE migration_name = $1 AND migration_type = $2 AND tenant_db_name = $3 AND success
    )`

	var exists bool
	if err := db.QueryRow(ctx, query, name, string(typ), tenantDB).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Runner) record(ctx context.Context, db DB, unit Migration, typ Type, tenantDB string, start time.Time, elapsed time.Duration, upErr error) error {
	const insert = `INSERT INTO migration_tracker
        (migration_name, migration_type, tenant_db_name, executed_at, execution_time_ms, success, error_message)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var errMsg *string
	if upErr != nil {
		msg := upErr.Error()
		errMsg = &msg
	}

	_, err := db.Exec(ctx, insert,
		unit.Name, string(typ), tenantDB, start, elapsed.Milliseconds(), upErr == nil, errMsg,
	)
	return err
}

func (r *Runner) observe(typ Type, outcome string) {
	if r.observer != nil {
		r.observer(typ, outcome)
	}
}
