package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"

	sqlassets "github.com/steeplehq/tenant-provisioner/database"
)

// MaxSchemaNameLength is the conservative Postgres identifier limit.
const MaxSchemaNameLength = 63

const maxNameLength = 255

var (
	domainPattern     = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)*\.[A-Za-z]{2,}$`)
	schemaNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validator checks tenant identifier candidates against format and
// uniqueness rules. It has no side effects and must run before any DDL is
// issued for a request.
type Validator struct {
	registry Registry
	settings *jsonschema.Schema
}

// NewValidator compiles the embedded tenant-settings schema and wires the
// registry used for uniqueness probes.
func NewValidator(registry Registry) (*Validator, error) {
	if registry == nil {
		panic("validator requires registry")
	}
	compiled, err := jsonschema.CompileString("tenant_settings.schema.json", sqlassets.TenantSettingsSchema)
	if err != nil {
		return nil, fmt.Errorf("compile tenant settings schema: %w", err)
	}
	return &Validator{registry: registry, settings: compiled}, nil
}

// Validate returns nil, a *ValidationError naming the offending field, or a
// *DuplicateKeyError when an identifier is already registered.
func (v *Validator) Validate(ctx context.Context, req CreateRequest) error {
	if err := v.validateFormat(req); err != nil {
		return err
	}

	exists, err := v.registry.ExistsDomain(ctx, req.Domain)
	if err != nil {
		return fmt.Errorf("check domain uniqueness: %w", err)
	}
	if exists {
		return &DuplicateKeyError{Field: "domain"}
	}

	exists, err = v.registry.ExistsSchemaName(ctx, req.SchemaName)
	if err != nil {
		return fmt.Errorf("check schema name uniqueness: %w", err)
	}
	if exists {
		return &DuplicateKeyError{Field: "schema_name"}
	}

	return nil
}

func (v *Validator) validateFormat(req CreateRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}

	if req.Domain == "" {
		return &ValidationError{Field: "domain", Reason: "must not be empty"}
	}
	if len(req.Domain) > maxNameLength || !domainPattern.MatchString(req.Domain) {
		return &ValidationError{Field: "domain", Reason: "must be a hostname with at least one dot and a 2+ character top-level segment"}
	}

	if req.SchemaName == "" {
		return &ValidationError{Field: "schema_name", Reason: "must not be empty"}
	}
	if len(req.SchemaName) > MaxSchemaNameLength {
		return &ValidationError{Field: "schema_name", Reason: fmt.Sprintf("must be at most %d characters", MaxSchemaNameLength)}
	}
	if !schemaNamePattern.MatchString(req.SchemaName) {
		return &ValidationError{Field: "schema_name", Reason: "must start with a letter or underscore and contain only letters, digits and underscores"}
	}

	if len(req.Settings) > 0 {
		var doc any
		if err := json.Unmarshal(req.Settings, &doc); err != nil {
			return &ValidationError{Field: "settings", Reason: "must be valid JSON"}
		}
		if err := v.settings.Validate(doc); err != nil {
			return &ValidationError{Field: "settings", Reason: err.Error()}
		}
	}

	return nil
}

// DeriveSchemaName builds a schema-safe identifier from a tenant domain:
// lowercased, dots and hyphens folded to underscores, prefixed when the
// result would not start with a letter or underscore, truncated to the
// backend identifier limit.
func DeriveSchemaName(domain string) string {
	s := strings.ToLower(domain)
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	if s == "" {
		return s
	}
	first := rune(s[0])
	if !unicode.IsLetter(first) && first != '_' {
		s = "tenant_" + s
	}
	if len(s) > MaxSchemaNameLength {
		s = s[:MaxSchemaNameLength]
	}
	return s
}
