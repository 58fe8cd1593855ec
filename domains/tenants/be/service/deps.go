package service

import (
	"context"

	"github.com/google/uuid"
)

// Registry is the durable tenant catalog in the shared schema. Uniqueness of
// domain, schema_name and api_key is ultimately enforced by database
// constraints; the Exists probes are an optimization consulted during
// validation.
type Registry interface {
	ExistsDomain(ctx context.Context, domain string) (bool, error)
	ExistsSchemaName(ctx context.Context, schemaName string) (bool, error)
	// Insert returns *DuplicateKeyError when a uniqueness constraint is
	// violated by a concurrent registration.
	Insert(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	GetByDomain(ctx context.Context, domain string) (Tenant, error)
	List(ctx context.Context, includeInactive bool) ([]Tenant, error)
	MarkProvisioned(ctx context.Context, id uuid.UUID, schemaProvisioned, migrationsApplied bool) error
	// Delete physically removes a row; used only while rolling back a failed
	// provisioning attempt. Normal retirement goes through Deactivate.
	Delete(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// SchemaStore is the only collaborator permitted to issue schema-level DDL.
// Every call names its target schema explicitly.
type SchemaStore interface {
	// CreateSchema is idempotent; the bool reports whether the schema was
	// newly created.
	CreateSchema(ctx context.Context, name string) (bool, error)
	// DropSchema cascades and tolerates the schema not existing.
	DropSchema(ctx context.Context, name string) error
	// ApplyMigrations runs the ordered steps after from up to to
	// (migrate.ToLatest for the end of the track) and returns the new
	// current revision. Already-applied steps are a no-op.
	ApplyMigrations(ctx context.Context, name string, from, to int) (int, error)
	CurrentRevision(ctx context.Context, name string) (int, error)
	LatestRevision() int
	PendingSteps(ctx context.Context, name string) ([]string, error)
	ValidateStructure(ctx context.Context, name string, requiredTables []string) error
}
