package sqlassets

import "embed"

// Migration scripts are embedded at build time so binaries stay
// self-contained. Each directory is an independent track: the shared
// registry schema and the per-tenant schema template.

//go:embed migrations/registry/*.sql
var RegistryMigrations embed.FS

//go:embed migrations/tenant/*.sql
var TenantMigrations embed.FS

// Track directories inside their embedded FS.
const (
	RegistryTrackDir = "migrations/registry"
	TenantTrackDir   = "migrations/tenant"
)

//go:embed schema/tenant_settings.schema.json
var TenantSettingsSchema string
