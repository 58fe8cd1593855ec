package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sqlassets "github.com/steeplehq/tenant-provisioner/database"
	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/provisioning"
	"github.com/steeplehq/tenant-provisioner/platform/go/logging"
	"github.com/steeplehq/tenant-provisioner/platform/go/migrate"
	"github.com/steeplehq/tenant-provisioner/platform/go/persistence"
)

// Command creates or upgrades the shared registry schema.
func Command() *cobra.Command {
	var (
		databaseURL    string
		registrySchema string
	)

	c := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the registry schema and bring it to the latest revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			logger, err := logging.NewLogger(logging.Config{Component: "provisioner-cli"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			track, err := migrate.Load("registry", sqlassets.RegistryMigrations, sqlassets.RegistryTrackDir)
			if err != nil {
				return fmt.Errorf("load registry track: %w", err)
			}

			store := provisioning.NewSchemaStore(pool, track, logger)
			if _, err := store.CreateSchema(ctx, registrySchema); err != nil {
				return fmt.Errorf("create registry schema: %w", err)
			}
			revision, err := store.ApplyMigrations(ctx, registrySchema, migrate.Unversioned, migrate.ToLatest)
			if err != nil {
				return fmt.Errorf("apply registry migrations: %w", err)
			}

			logger.Info("registry bootstrapped",
				zap.String("schema", registrySchema),
				zap.Int("revision", revision),
			)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&registrySchema, "registry-schema", "public", "schema holding the tenant registry")
	_ = c.MarkFlagRequired("database-url")

	return c
}
