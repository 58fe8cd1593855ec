package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/tenant-provisioner/platform/go/migrate"
)

// Tenant is the domain model for a registry entry. Rows are never physically
// deleted by this subsystem outside of provisioning rollback; retirement
// flips IsActive.
type Tenant struct {
	ID                uuid.UUID
	Name              string
	Domain            string
	SchemaName        string
	APIKey            string
	Settings          json.RawMessage
	SchemaProvisioned bool
	MigrationsApplied bool
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateRequest carries the candidate identifiers for one tenant. SchemaName
// is derived from Domain when left empty.
type CreateRequest struct {
	Name       string          `json:"name"`
	Domain     string          `json:"domain"`
	SchemaName string          `json:"schema_name,omitempty"`
	Settings   json.RawMessage `json:"settings,omitempty"`
}

// MigrationStatus reports where a tenant schema sits on the tenant track.
type MigrationStatus struct {
	TenantID          uuid.UUID
	SchemaName        string
	CurrentRevision   int
	LatestRevision    int
	PendingSteps      []string
	SchemaProvisioned bool
	MigrationsApplied bool
}

// Provisioning stages, used for logging and timeout attribution.
type stage string

const (
	stageValidating     stage = "validating"
	stageSchemaCreating stage = "schema_creating"
	stageMigrating      stage = "migrating"
	stageRegistering    stage = "registering"
	stageVerifying      stage = "verifying"
)

// DefaultRequiredTables are the structural tables every provisioned tenant
// schema must contain after migrations.
var DefaultRequiredTables = []string{"members", "visits", "pastoral_notes", "reports"}

// Config tunes the single-tenant provisioner.
type Config struct {
	// StepTimeout bounds each provisioning step. Zero means 2 minutes.
	StepTimeout time.Duration
	// Retries re-attempts provisioning after retryable failures (schema
	// creation errors, timeouts). Validation and duplicate-key failures are
	// never retried.
	Retries int
	// RequiredTables overrides DefaultRequiredTables when non-nil.
	RequiredTables []string
}

const defaultStepTimeout = 2 * time.Minute

// Service executes the ordered single-tenant provisioning workflow
// (validate, create schema, register, migrate, verify) with rollback on
// failure, plus migration-status and lifecycle operations.
type Service struct {
	registry  Registry
	schemas   SchemaStore
	validator *Validator
	logger    *zap.Logger
	cfg       Config
}

// New constructs a Service with required dependencies.
func New(registry Registry, schemas SchemaStore, validator *Validator, logger *zap.Logger, cfg Config) *Service {
	if registry == nil {
		panic("tenants registry is required")
	}
	if schemas == nil {
		panic("schema store is required")
	}
	if validator == nil {
		panic("validator is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	if cfg.RequiredTables == nil {
		cfg.RequiredTables = DefaultRequiredTables
	}
	return &Service{registry: registry, schemas: schemas, validator: validator, logger: logger, cfg: cfg}
}

// Provision runs the full workflow for one tenant. Failures after schema
// creation roll the tenant's partial state back before being reported;
// retryable failures are re-attempted up to cfg.Retries times.
func (s *Service) Provision(ctx context.Context, req CreateRequest) (Tenant, error) {
	if req.SchemaName == "" {
		req.SchemaName = DeriveSchemaName(req.Domain)
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying tenant provisioning",
				zap.String("domain", req.Domain),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}
		t, err := s.provisionOnce(ctx, req)
		if err == nil {
			return t, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return Tenant{}, err
		}
	}
	return Tenant{}, lastErr
}

func (s *Service) provisionOnce(ctx context.Context, req CreateRequest) (Tenant, error) {
	logger := s.logger.With(zap.String("domain", req.Domain), zap.String("schema", req.SchemaName))

	if err := s.step(ctx, stageValidating, func(ctx context.Context) error {
		return s.validator.Validate(ctx, req)
	}); err != nil {
		return Tenant{}, err
	}

	apiKey, err := GenerateAPIKey()
	if err != nil {
		return Tenant{}, err
	}

	if err := s.step(ctx, stageSchemaCreating, func(ctx context.Context) error {
		_, err := s.schemas.CreateSchema(ctx, req.SchemaName)
		return err
	}); err != nil {
		// Nothing to roll back yet.
		return Tenant{}, err
	}
	logger.Info("tenant schema created")

	now := time.Now().UTC()
	tenant := Tenant{
		ID:                uuid.New(),
		Name:              req.Name,
		Domain:            req.Domain,
		SchemaName:        req.SchemaName,
		APIKey:            apiKey,
		Settings:          req.Settings,
		SchemaProvisioned: true,
		MigrationsApplied: false,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.step(ctx, stageRegistering, func(ctx context.Context) error {
		inserted, err := s.registry.Insert(ctx, tenant)
		if err != nil {
			return err
		}
		tenant = inserted
		return nil
	}); err != nil {
		// A concurrent request won the race for one of the identifiers;
		// drop the schema this attempt created.
		return Tenant{}, s.rollback(ctx, logger, tenant.SchemaName, uuid.Nil, err)
	}

	if err := s.step(ctx, stageMigrating, func(ctx context.Context) error {
		_, err := s.schemas.ApplyMigrations(ctx, tenant.SchemaName, migrate.Unversioned, migrate.ToLatest)
		return err
	}); err != nil {
		return Tenant{}, s.rollback(ctx, logger, tenant.SchemaName, tenant.ID, err)
	}

	if err := s.step(ctx, stageVerifying, func(ctx context.Context) error {
		if err := s.schemas.ValidateStructure(ctx, tenant.SchemaName, s.cfg.RequiredTables); err != nil {
			return err
		}
		return s.registry.MarkProvisioned(ctx, tenant.ID, true, true)
	}); err != nil {
		return Tenant{}, s.rollback(ctx, logger, tenant.SchemaName, tenant.ID, err)
	}

	tenant.MigrationsApplied = true
	logger.Info("tenant provisioned", zap.String("tenant_id", tenant.ID.String()))
	return tenant, nil
}

// step runs fn under the configured per-step timeout. A deadline hit inside
// the step (not caused by the caller's own context) maps to *TimeoutError.
func (s *Service) step(ctx context.Context, st stage, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	err := fn(stepCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{Step: string(st), Cause: err}
	}
	return err
}

// rollback drops the schema and, when id is set, deletes the registry row.
// It runs detached from the (possibly expired) step context so cleanup still
// proceeds, and reports its own failure alongside the primary cause.
func (s *Service) rollback(ctx context.Context, logger *zap.Logger, schemaName string, id uuid.UUID, cause error) error {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StepTimeout)
	defer cancel()

	var rbErr error
	if err := s.schemas.DropSchema(rbCtx, schemaName); err != nil {
		rbErr = err
	}
	if id != uuid.Nil {
		if err := s.registry.Delete(rbCtx, id); err != nil && !errors.Is(err, ErrNotFound) {
			rbErr = errors.Join(rbErr, err)
		}
	}

	if rbErr != nil {
		logger.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", cause))
		return &RollbackError{Cause: cause, Rollback: rbErr}
	}
	logger.Info("provisioning rolled back", zap.Error(cause))
	return cause
}

func retryable(err error) bool {
	var creation *SchemaCreationError
	var timeout *TimeoutError
	return errors.As(err, &creation) || errors.As(err, &timeout)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.registry.Get(ctx, id)
}

// GetByDomain returns a tenant by its unique domain.
func (s *Service) GetByDomain(ctx context.Context, domain string) (Tenant, error) {
	return s.registry.GetByDomain(ctx, domain)
}

// List returns registry entries, optionally including deactivated tenants.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]Tenant, error) {
	return s.registry.List(ctx, includeInactive)
}

// Deactivate soft-retires a tenant; its schema and data stay in place.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.registry.Deactivate(ctx, id)
}

// MigrationStatus reports the tenant schema's position on the tenant track.
func (s *Service) MigrationStatus(ctx context.Context, id uuid.UUID) (MigrationStatus, error) {
	tenant, err := s.registry.Get(ctx, id)
	if err != nil {
		return MigrationStatus{}, err
	}

	current, err := s.schemas.CurrentRevision(ctx, tenant.SchemaName)
	if err != nil {
		return MigrationStatus{}, err
	}
	pending, err := s.schemas.PendingSteps(ctx, tenant.SchemaName)
	if err != nil {
		return MigrationStatus{}, err
	}

	return MigrationStatus{
		TenantID:          tenant.ID,
		SchemaName:        tenant.SchemaName,
		CurrentRevision:   current,
		LatestRevision:    s.schemas.LatestRevision(),
		PendingSteps:      pending,
		SchemaProvisioned: tenant.SchemaProvisioned,
		MigrationsApplied: tenant.MigrationsApplied,
	}, nil
}

// ApplyPending runs outstanding migration steps for an existing tenant and
// updates the registry flags. Unlike initial provisioning there is no
// rollback here: a failed step leaves the schema at its last good revision.
func (s *Service) ApplyPending(ctx context.Context, id uuid.UUID) (MigrationStatus, error) {
	tenant, err := s.registry.Get(ctx, id)
	if err != nil {
		return MigrationStatus{}, err
	}

	if err := s.step(ctx, stageMigrating, func(ctx context.Context) error {
		_, err := s.schemas.ApplyMigrations(ctx, tenant.SchemaName, migrate.Unversioned, migrate.ToLatest)
		return err
	}); err != nil {
		return MigrationStatus{}, err
	}

	if err := s.registry.MarkProvisioned(ctx, tenant.ID, true, true); err != nil {
		return MigrationStatus{}, err
	}

	return s.MigrationStatus(ctx, id)
}
