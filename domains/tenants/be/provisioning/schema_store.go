package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
	"github.com/steeplehq/tenant-provisioner/platform/go/migrate"
)

// versionTable holds the per-schema version marker: one row, the revision of
// the last successfully applied step on this store's track.
const versionTable = "schema_version"

// SchemaStore is the only component that issues schema-level DDL. Every
// operation names its target schema explicitly; nothing relies on an ambient
// current schema. One store serves one migration track.
type SchemaStore struct {
	pool   *pgxpool.Pool
	track  *migrate.Track
	logger *zap.Logger
}

// NewSchemaStore constructs a store for the given track.
func NewSchemaStore(pool *pgxpool.Pool, track *migrate.Track, logger *zap.Logger) *SchemaStore {
	if pool == nil {
		panic("schema store requires pool")
	}
	if track == nil {
		panic("schema store requires track")
	}
	if logger == nil {
		panic("schema store requires logger")
	}
	return &SchemaStore{pool: pool, track: track, logger: logger.With(zap.String("track", track.Name()))}
}

// CreateSchema creates the named schema if missing and reports whether it
// was newly created.
func (s *SchemaStore) CreateSchema(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", name,
	).Scan(&exists)
	if err != nil {
		return false, &service.SchemaCreationError{SchemaName: name, Cause: err}
	}

	if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, &service.SchemaCreationError{SchemaName: name, Cause: err}
	}

	if !exists {
		s.logger.Info("schema created", zap.String("schema", name))
	}
	return !exists, nil
}

// DropSchema drops the schema and everything in it; tolerates the schema not
// existing.
func (s *SchemaStore) DropSchema(ctx context.Context, name string) error {
	if _, err := s.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{name}.Sanitize()+" CASCADE"); err != nil {
		return fmt.Errorf("drop schema %s: %w", name, err)
	}
	return nil
}

// CurrentRevision reads the version marker; migrate.Unversioned means no
// marker exists yet (pre-first-migration state).
func (s *SchemaStore) CurrentRevision(ctx context.Context, name string) (int, error) {
	exists, err := s.tableExists(ctx, name, versionTable)
	if err != nil {
		return 0, err
	}
	if !exists {
		return migrate.Unversioned, nil
	}

	query := "SELECT current_revision FROM " + pgx.Identifier{name, versionTable}.Sanitize()
	var revision int
	if err := s.pool.QueryRow(ctx, query).Scan(&revision); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return migrate.Unversioned, nil
		}
		return 0, fmt.Errorf("read version marker for %s: %w", name, err)
	}
	return revision, nil
}

// LatestRevision returns the newest revision available on the track.
func (s *SchemaStore) LatestRevision() int {
	return s.track.Latest()
}

// PendingSteps names the steps not yet applied to the schema, in order.
func (s *SchemaStore) PendingSteps(ctx context.Context, name string) ([]string, error) {
	current, err := s.CurrentRevision(ctx, name)
	if err != nil {
		return nil, err
	}
	steps, err := s.track.Ascending(current, migrate.ToLatest)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(steps))
	for _, step := range steps {
		names = append(names, fmt.Sprintf("%04d_%s", step.Revision, step.Name))
	}
	return names, nil
}

// ApplyMigrations executes the ordered steps strictly greater than from up
// to to (migrate.ToLatest selects the end of the track) against the named
// schema. Steps at or below the schema's current revision are never
// re-applied. Each step runs in its own transaction together with its
// version-marker update, so a failed step leaves no partial DDL behind.
func (s *SchemaStore) ApplyMigrations(ctx context.Context, name string, from, to int) (int, error) {
	current, err := s.CurrentRevision(ctx, name)
	if err != nil {
		return migrate.Unversioned, err
	}
	if current > from {
		from = current
	}

	steps, err := s.track.Ascending(from, to)
	if err != nil {
		return current, err
	}

	for _, step := range steps {
		if err := s.applyStep(ctx, name, step); err != nil {
			return current, &service.MigrationError{
				SchemaName: name,
				Step:       step.Revision,
				StepName:   step.Name,
				Cause:      err,
			}
		}
		current = step.Revision
		s.logger.Info("migration step applied",
			zap.String("schema", name),
			zap.Int("revision", step.Revision),
			zap.String("step", step.Name),
		)
	}
	return current, nil
}

// Downgrade walks the track backwards to the target revision using the down
// scripts. This is the only path that moves a version marker backwards.
func (s *SchemaStore) Downgrade(ctx context.Context, name string, to int) (int, error) {
	current, err := s.CurrentRevision(ctx, name)
	if err != nil {
		return migrate.Unversioned, err
	}

	steps, err := s.track.Descending(current, to)
	if err != nil {
		return current, err
	}

	for _, step := range steps {
		if step.DownSQL == "" {
			return current, &service.MigrationError{
				SchemaName: name,
				Step:       step.Revision,
				StepName:   step.Name,
				Cause:      errors.New("no down script"),
			}
		}
		if err := s.revertStep(ctx, name, step); err != nil {
			return current, &service.MigrationError{
				SchemaName: name,
				Step:       step.Revision,
				StepName:   step.Name,
				Cause:      err,
			}
		}
		current = s.previousRevision(step.Revision)
		s.logger.Info("migration step reverted",
			zap.String("schema", name),
			zap.Int("revision", step.Revision),
			zap.String("step", step.Name),
		)
	}
	return current, nil
}

// ValidateStructure confirms every required table exists in the schema,
// independently of the version marker.
func (s *SchemaStore) ValidateStructure(ctx context.Context, name string, requiredTables []string) error {
	var missing []string
	for _, table := range requiredTables {
		exists, err := s.tableExists(ctx, name, table)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return &service.StructuralValidationError{SchemaName: name, MissingTables: missing}
	}
	return nil
}

func (s *SchemaStore) applyStep(ctx context.Context, name string, step migrate.Step) error {
	return s.inSchemaTx(ctx, name, func(tx pgx.Tx) error {
		for _, stmt := range splitStatements(step.UpSQL) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return s.writeMarker(ctx, tx, step.Revision)
	})
}

func (s *SchemaStore) revertStep(ctx context.Context, name string, step migrate.Step) error {
	return s.inSchemaTx(ctx, name, func(tx pgx.Tx) error {
		for _, stmt := range splitStatements(step.DownSQL) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return s.writeMarker(ctx, tx, s.previousRevision(step.Revision))
	})
}

// inSchemaTx runs fn in a transaction whose search_path is pinned to the
// target schema, so unqualified DDL in the scripts lands there and only
// there.
func (s *SchemaStore) inSchemaTx(ctx context.Context, name string, fn func(pgx.Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if _, err := tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+versionTable+" (current_revision integer NOT NULL)"); err != nil {
		return fmt.Errorf("ensure version marker: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *SchemaStore) writeMarker(ctx context.Context, tx pgx.Tx, revision int) error {
	tag, err := tx.Exec(ctx, "UPDATE "+versionTable+" SET current_revision = $1", revision)
	if err != nil {
		return fmt.Errorf("update version marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, "INSERT INTO "+versionTable+" (current_revision) VALUES ($1)", revision); err != nil {
			return fmt.Errorf("insert version marker: %w", err)
		}
	}
	return nil
}

// previousRevision returns the revision immediately below rev on the track,
// or migrate.Unversioned when rev is the first step.
func (s *SchemaStore) previousRevision(rev int) int {
	prev := migrate.Unversioned
	for _, step := range s.track.Steps() {
		if step.Revision >= rev {
			break
		}
		prev = step.Revision
	}
	return prev
}

func (s *SchemaStore) tableExists(ctx context.Context, schema, table string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1
            FROM pg_class c
            JOIN pg_namespace n ON n.oid = c.relnamespace
            WHERE n.nspname = $1 AND c.relname = $2
        )`, schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schema, table, err)
	}
	return exists, nil
}

var _ service.SchemaStore = (*SchemaStore)(nil)
