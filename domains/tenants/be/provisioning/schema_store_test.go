package provisioning_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	sqlassets "github.com/steeplehq/tenant-provisioner/database"
	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/provisioning"
	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
	"github.com/steeplehq/tenant-provisioner/platform/go/migrate"
	"github.com/steeplehq/tenant-provisioner/platform/go/persistence/pgtest"
)

var schemaSeq int

func testSchemaName() string {
	schemaSeq++
	return fmt.Sprintf("it_schema_store_%d", schemaSeq)
}

func newStore(t *testing.T) *provisioning.SchemaStore {
	t.Helper()
	pool := pgtest.Pool(t)
	track, err := migrate.Load("tenant", sqlassets.TenantMigrations, sqlassets.TenantTrackDir)
	require.NoError(t, err)
	return provisioning.NewSchemaStore(pool, track, zaptest.NewLogger(t))
}

func provisionedSchema(t *testing.T, store *provisioning.SchemaStore) string {
	t.Helper()
	ctx := context.Background()
	name := testSchemaName()

	created, err := store.CreateSchema(ctx, name)
	require.NoError(t, err)
	require.True(t, created)
	t.Cleanup(func() {
		_ = store.DropSchema(context.Background(), name)
	})
	return name
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	name := provisionedSchema(t, store)

	created, err := store.CreateSchema(ctx, name)
	require.NoError(t, err)
	require.False(t, created)
}

func TestApplyMigrationsFullTrack(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	name := provisionedSchema(t, store)

	revision, err := store.ApplyMigrations(ctx, name, migrate.Unversioned, migrate.ToLatest)
	require.NoError(t, err)
	require.Equal(t, store.LatestRevision(), revision)

	current, err := store.CurrentRevision(ctx, name)
	require.NoError(t, err)
	require.Equal(t, store.LatestRevision(), current)

	require.NoError(t, store.ValidateStructure(ctx, name, service.DefaultRequiredTables))

	pending, err := store.PendingSteps(ctx, name)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestApplyMigrationsIsMonotonic(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	name := provisionedSchema(t, store)

	_, err := store.ApplyMigrations(ctx, name, migrate.Unversioned, migrate.ToLatest)
	require.NoError(t, err)

	// Re-running from the bottom must not re-execute applied steps; the
	// create statements would fail on existing tables if it did.
	revision, err := store.ApplyMigrations(ctx, name, migrate.Unversioned, migrate.ToLatest)
	require.NoError(t, err)
	require.Equal(t, store.LatestRevision(), revision)
}

func TestApplyMigrationsPartialWindow(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	name := provisionedSchema(t, store)

	revision, err := store.ApplyMigrations(ctx, name, migrate.Unversioned, 1)
	require.NoError(t, err)
	require.Equal(t, 1, revision)

	pending, err := store.PendingSteps(ctx, name)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	revision, err = store.ApplyMigrations(ctx, name, migrate.Unversioned, migrate.ToLatest)
	require.NoError(t, err)
	require.Equal(t, store.LatestRevision(), revision)
}

func TestDowngradeWalksBack(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	name := provisionedSchema(t, store)

	_, err := store.ApplyMigrations(ctx, name, migrate.Unversioned, migrate.ToLatest)
	require.NoError(t, err)

	revision, err := store.Downgrade(ctx, name, 1)
	require.NoError(t, err)
	require.Equal(t, 1, revision)

	err = store.ValidateStructure(ctx, name, service.DefaultRequiredTables)
	var sErr *service.StructuralValidationError
	require.ErrorAs(t, err, &sErr)
	require.Contains(t, sErr.MissingTables, "reports")
}

func TestDropSchemaRemovesEverything(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	name := provisionedSchema(t, store)

	_, err := store.ApplyMigrations(ctx, name, migrate.Unversioned, migrate.ToLatest)
	require.NoError(t, err)

	require.NoError(t, store.DropSchema(ctx, name))

	current, err := store.CurrentRevision(ctx, name)
	require.NoError(t, err)
	require.Equal(t, migrate.Unversioned, current)

	// Dropping again is tolerated.
	require.NoError(t, store.DropSchema(ctx, name))
}

func TestMigrationsIsolatedPerSchema(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	first := provisionedSchema(t, store)
	second := provisionedSchema(t, store)

	_, err := store.ApplyMigrations(ctx, first, migrate.Unversioned, migrate.ToLatest)
	require.NoError(t, err)

	// The sibling schema is untouched.
	current, err := store.CurrentRevision(ctx, second)
	require.NoError(t, err)
	require.Equal(t, migrate.Unversioned, current)

	err = store.ValidateStructure(ctx, second, service.DefaultRequiredTables)
	var sErr *service.StructuralValidationError
	require.ErrorAs(t, err, &sErr)
}
