package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
)

// MemoryRegistry is an in-memory service.Registry suitable for tests and
// early development. It enforces the same uniqueness rules the database
// constraints do.
type MemoryRegistry struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]service.Tenant
	byDomain map[string]uuid.UUID
	bySchema map[string]uuid.UUID
	byAPIKey map[string]uuid.UUID
}

// NewMemoryRegistry constructs an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID:     make(map[uuid.UUID]service.Tenant),
		byDomain: make(map[string]uuid.UUID),
		bySchema: make(map[string]uuid.UUID),
		byAPIKey: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRegistry) ExistsDomain(ctx context.Context, domain string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byDomain[domain]
	return ok, nil
}

func (r *MemoryRegistry) ExistsSchemaName(ctx context.Context, schemaName string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySchema[schemaName]
	return ok, nil
}

func (r *MemoryRegistry) Insert(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byDomain[t.Domain]; ok {
		return service.Tenant{}, &service.DuplicateKeyError{Field: "domain"}
	}
	if _, ok := r.bySchema[t.SchemaName]; ok {
		return service.Tenant{}, &service.DuplicateKeyError{Field: "schema_name"}
	}
	if _, ok := r.byAPIKey[t.APIKey]; ok {
		return service.Tenant{}, &service.DuplicateKeyError{Field: "api_key"}
	}

	r.byID[t.ID] = t
	r.byDomain[t.Domain] = t.ID
	r.bySchema[t.SchemaName] = t.ID
	r.byAPIKey[t.APIKey] = t.ID
	return t, nil
}

func (r *MemoryRegistry) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRegistry) GetByDomain(ctx context.Context, domain string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byDomain[domain]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRegistry) List(ctx context.Context, includeInactive bool) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenants := make([]service.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		if !includeInactive && !t.IsActive {
			continue
		}
		tenants = append(tenants, t)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].CreatedAt.Before(tenants[j].CreatedAt) })
	return tenants, nil
}

func (r *MemoryRegistry) MarkProvisioned(ctx context.Context, id uuid.UUID, schemaProvisioned, migrationsApplied bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}
	t.SchemaProvisioned = schemaProvisioned
	t.MigrationsApplied = migrationsApplied
	r.byID[id] = t
	return nil
}

func (r *MemoryRegistry) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byDomain, t.Domain)
	delete(r.bySchema, t.SchemaName)
	delete(r.byAPIKey, t.APIKey)
	return nil
}

func (r *MemoryRegistry) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return service.ErrNotFound
	}
	t.IsActive = false
	r.byID[id] = t
	return nil
}

var _ service.Registry = (*MemoryRegistry)(nil)
var _ service.Registry = (*PostgresRegistry)(nil)
