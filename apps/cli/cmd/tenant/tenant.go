package tenantcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	sqlassets "github.com/steeplehq/tenant-provisioner/database"
	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/provisioning"
	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/repo"
	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
	"github.com/steeplehq/tenant-provisioner/platform/go/logging"
	"github.com/steeplehq/tenant-provisioner/platform/go/migrate"
	"github.com/steeplehq/tenant-provisioner/platform/go/persistence"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (provision/migrate/list)",
	}

	cmd.AddCommand(provisionCommand())
	cmd.AddCommand(migrateCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

func provisionCommand() *cobra.Command {
	var (
		databaseURL    string
		registrySchema string
		name           string
		domain         string
		schemaName     string
		settingsJSON   string
	)

	c := &cobra.Command{
		Use:   "provision",
		Short: "Provision one tenant (schema, registry row, migrations, verification)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, pool, err := buildService(ctx, databaseURL, registrySchema)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			req := service.CreateRequest{
				Name:       name,
				Domain:     domain,
				SchemaName: schemaName,
			}
			if settingsJSON != "" {
				req.Settings = json.RawMessage(settingsJSON)
			}

			tenant, err := svc.Provision(ctx, req)
			if err != nil {
				return fmt.Errorf("provision tenant: %w", err)
			}

			fmt.Printf("tenant %s provisioned\n", tenant.ID)
			fmt.Printf("  schema:  %s\n", tenant.SchemaName)
			fmt.Printf("  api key: %s\n", tenant.APIKey)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&registrySchema, "registry-schema", "public", "schema holding the tenant registry")
	c.Flags().StringVar(&name, "name", "", "tenant display name")
	c.Flags().StringVar(&domain, "domain", "", "tenant domain, e.g. first-baptist.example.org")
	c.Flags().StringVar(&schemaName, "schema", "", "schema name override (derived from domain when empty)")
	c.Flags().StringVar(&settingsJSON, "settings", "", "tenant settings as a JSON document")
	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("domain")

	return c
}

func migrateCommand() *cobra.Command {
	var (
		databaseURL    string
		registrySchema string
		tenantID       string
	)

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migration steps to an existing tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("parse tenant id: %w", err)
			}

			svc, pool, err := buildService(ctx, databaseURL, registrySchema)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			status, err := svc.ApplyPending(ctx, id)
			if err != nil {
				return fmt.Errorf("apply pending migrations: %w", err)
			}

			fmt.Printf("schema %s at revision %d (latest %d)\n",
				status.SchemaName, status.CurrentRevision, status.LatestRevision)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&registrySchema, "registry-schema", "public", "schema holding the tenant registry")
	c.Flags().StringVar(&tenantID, "id", "", "tenant id")
	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("id")

	return c
}

func listCommand() *cobra.Command {
	var (
		databaseURL     string
		registrySchema  string
		includeInactive bool
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, pool, err := buildService(ctx, databaseURL, registrySchema)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			tenants, err := svc.List(ctx, includeInactive)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDOMAIN\tSCHEMA\tACTIVE\tMIGRATED")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n",
					t.ID, t.Name, t.Domain, t.SchemaName, t.IsActive, t.MigrationsApplied)
			}
			return w.Flush()
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string")
	c.Flags().StringVar(&registrySchema, "registry-schema", "public", "schema holding the tenant registry")
	c.Flags().BoolVar(&includeInactive, "all", false, "include deactivated tenants")
	_ = c.MarkFlagRequired("database-url")

	return c
}

// buildService wires the full provisioning stack the way the API server does,
// minus the batch orchestrator. The caller owns the returned pool.
func buildService(ctx context.Context, databaseURL, registrySchema string) (*service.Service, *pgxpool.Pool, error) {
	logger, err := logging.NewLogger(logging.Config{Component: "provisioner-cli"})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	track, err := migrate.Load("tenant", sqlassets.TenantMigrations, sqlassets.TenantTrackDir)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("load tenant track: %w", err)
	}

	registry := repo.NewPostgresRegistry(pool, registrySchema)
	validator, err := service.NewValidator(registry)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init validator: %w", err)
	}

	store := provisioning.NewSchemaStore(pool, track, logger)
	svc := service.New(registry, store, validator, logger, service.Config{})
	return svc, pool, nil
}
