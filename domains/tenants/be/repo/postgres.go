package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
)

const uniqueViolationCode = "23505"

// PostgresRegistry implements service.Registry against the tenant_registry
// table in the shared schema.
type PostgresRegistry struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresRegistry constructs a registry bound to the given shared schema
// (e.g. "public").
func NewPostgresRegistry(pool *pgxpool.Pool, registrySchema string) *PostgresRegistry {
	if pool == nil {
		panic("tenant registry requires pool")
	}
	registrySchema = strings.TrimSpace(registrySchema)
	if registrySchema == "" {
		panic("tenant registry requires registry schema")
	}
	return &PostgresRegistry{
		pool:  pool,
		table: pgx.Identifier{registrySchema, "tenant_registry"}.Sanitize(),
	}
}

const tenantColumns = `id, tenant_name, domain, schema_name, api_key, settings,
    schema_provisioned, migrations_applied, is_active, created_at, updated_at`

func (r *PostgresRegistry) ExistsDomain(ctx context.Context, domain string) (bool, error) {
	return r.exists(ctx, "domain", domain)
}

func (r *PostgresRegistry) ExistsSchemaName(ctx context.Context, schemaName string) (bool, error) {
	return r.exists(ctx, "schema_name", schemaName)
}

func (r *PostgresRegistry) exists(ctx context.Context, column, value string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)", r.table, column)
	var exists bool
	if err := r.pool.QueryRow(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s existence: %w", column, err)
	}
	return exists, nil
}

func (r *PostgresRegistry) Insert(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	query := fmt.Sprintf(`
        INSERT INTO %s (
            id, tenant_name, domain, schema_name, api_key, settings,
            schema_provisioned, migrations_applied, is_active, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING %s
    `, r.table, tenantColumns)

	row := r.pool.QueryRow(ctx, query,
		t.ID, t.Name, t.Domain, t.SchemaName, t.APIKey, t.Settings,
		t.SchemaProvisioned, t.MigrationsApplied, t.IsActive, t.CreatedAt, t.UpdatedAt,
	)
	out, err := scanTenant(row)
	if err != nil {
		return service.Tenant{}, mapInsertError(err)
	}
	return out, nil
}

func (r *PostgresRegistry) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", tenantColumns, r.table)
	out, err := scanTenant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return out, nil
}

func (r *PostgresRegistry) GetByDomain(ctx context.Context, domain string) (service.Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE domain = $1", tenantColumns, r.table)
	out, err := scanTenant(r.pool.QueryRow(ctx, query, domain))
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return out, nil
}

func (r *PostgresRegistry) List(ctx context.Context, includeInactive bool) ([]service.Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", tenantColumns, r.table)
	if !includeInactive {
		query += " WHERE is_active"
	}
	query += " ORDER BY created_at, id"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []service.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *PostgresRegistry) MarkProvisioned(ctx context.Context, id uuid.UUID, schemaProvisioned, migrationsApplied bool) error {
	query := fmt.Sprintf(`
        UPDATE %s
        SET schema_provisioned = $2, migrations_applied = $3, updated_at = now()
        WHERE id = $1
    `, r.table)

	tag, err := r.pool.Exec(ctx, query, id, schemaProvisioned, migrationsApplied)
	if err != nil {
		return fmt.Errorf("mark provisioned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func (r *PostgresRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table)
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func (r *PostgresRegistry) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = FALSE, updated_at = now() WHERE id = $1", r.table)
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (service.Tenant, error) {
	var t service.Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.Domain, &t.SchemaName, &t.APIKey, &t.Settings,
		&t.SchemaProvisioned, &t.MigrationsApplied, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return service.Tenant{}, err
	}
	return t, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return service.ErrNotFound
	}
	return err
}

// mapInsertError translates unique-constraint violations into the domain's
// DuplicateKeyError, identifying the colliding field by constraint name.
func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return fmt.Errorf("insert tenant: %w", err)
	}

	field := "tenant"
	switch {
	case strings.Contains(pgErr.ConstraintName, "domain"):
		field = "domain"
	case strings.Contains(pgErr.ConstraintName, "schema_name"):
		field = "schema_name"
	case strings.Contains(pgErr.ConstraintName, "api_key"):
		field = "api_key"
	}
	return &service.DuplicateKeyError{Field: field}
}
