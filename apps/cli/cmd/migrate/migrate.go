package migratecmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spaceboi21/ai-professor-backend-sub006/migrate"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/config"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/logging"
	"github.com/spaceboi21/ai-professor-backend-sub006/platform/persistence"
)

// Command groups migration helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migration utilities",
	}

	cmd.AddCommand(runCommand())
	return cmd
}

func runCommand() *cobra.Command {
	var (
		migrationType string
		dbName        string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Run pending migrations against the central or a tenant database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.NewLogger(logging.Config{
				Component: "migrate-cli",
				Level:     cfg.LogLevel,
			})
			if err != nil {
				log.Fatalf("init zap logger: %v", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			centralPool, err := persistence.NewPool(ctx, persistence.PoolConfig{
				ConnString: cfg.DatabaseURL + "/" + cfg.CentralDBName,
			})
			if err != nil {
				return fmt.Errorf("init central pool: %w", err)
			}
			defer persistence.ClosePool(centralPool)

			tenantPools, err := persistence.NewTenantPools(persistence.TenantPoolsConfig{
				BaseURI: cfg.DatabaseURL,
			}, logger)
			if err != nil {
				return fmt.Errorf("init tenant pools: %w", err)
			}
			defer tenantPools.Close()

			runner := migrate.NewRunner(migrate.RunnerConfig{
				Registry: migrate.Registry(),
				Central:  centralPool,
				TenantDB: func(ctx context.Context, databaseName string) (migrate.DB, error) {
					return tenantPools.Get(ctx, databaseName)
				},
				Logger: logger,
			})

			var result migrate.Result
			switch migrationType {
			case "central":
				result, err = runner.Run(ctx, migrate.TypeCentral, "")
			case "tenant":
				if dbName == "" {
					return fmt.Errorf("--db-name is required for tenant migrations")
				}
				result, err = runner.Run(ctx, migrate.TypeTenant, dbName)
			case "all":
				result, err = runner.RunAll(ctx, dbName)
			default:
				return fmt.Errorf("invalid --type %q (use central, tenant, or all)", migrationType)
			}
			if err != nil {
				return err
			}

			logger.Info("migration run complete",
				zap.Int("executed", result.Executed),
				zap.Int("skipped", result.Skipped),
			)
			return nil
		},
	}

	c.Flags().StringVar(&migrationType, "type", "all", "Which migrations to run: central, tenant, or all")
	c.Flags().StringVar(&dbName, "db-name", "", "Tenant database name (required for --type tenant)")
	return c
}
