package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// probeRegistry is a Registry that only answers the uniqueness probes; the
// validator never touches the other methods.
type probeRegistry struct {
	domains map[string]bool
	schemas map[string]bool
}

func (r *probeRegistry) ExistsDomain(ctx context.Context, domain string) (bool, error) {
	return r.domains[domain], nil
}

func (r *probeRegistry) ExistsSchemaName(ctx context.Context, schemaName string) (bool, error) {
	return r.schemas[schemaName], nil
}

func (r *probeRegistry) Insert(ctx context.Context, t Tenant) (Tenant, error) { panic("not used") }
func (r *probeRegistry) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	panic("not used")
}
func (r *probeRegistry) GetByDomain(ctx context.Context, domain string) (Tenant, error) {
	panic("not used")
}
func (r *probeRegistry) List(ctx context.Context, includeInactive bool) ([]Tenant, error) {
	panic("not used")
}
func (r *probeRegistry) MarkProvisioned(ctx context.Context, id uuid.UUID, schemaProvisioned, migrationsApplied bool) error {
	panic("not used")
}
func (r *probeRegistry) Delete(ctx context.Context, id uuid.UUID) error     { panic("not used") }
func (r *probeRegistry) Deactivate(ctx context.Context, id uuid.UUID) error { panic("not used") }

func newTestValidator(t *testing.T, reg *probeRegistry) *Validator {
	t.Helper()
	if reg == nil {
		reg = &probeRegistry{domains: map[string]bool{}, schemas: map[string]bool{}}
	}
	v, err := NewValidator(reg)
	require.NoError(t, err)
	return v
}

func validRequest() CreateRequest {
	return CreateRequest{
		Name:       "First Baptist",
		Domain:     "first-baptist.example.org",
		SchemaName: "first_baptist_example_org",
	}
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	v := newTestValidator(t, nil)
	require.NoError(t, v.Validate(context.Background(), validRequest()))
}

func TestValidateFormatFailures(t *testing.T) {
	v := newTestValidator(t, nil)

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
		field  string
	}{
		{"empty name", func(r *CreateRequest) { r.Name = "  " }, "name"},
		{"name too long", func(r *CreateRequest) { r.Name = strings.Repeat("a", 256) }, "name"},
		{"empty domain", func(r *CreateRequest) { r.Domain = "" }, "domain"},
		{"domain without dot", func(r *CreateRequest) { r.Domain = "localhost" }, "domain"},
		{"domain with scheme", func(r *CreateRequest) { r.Domain = "https://x.example.org" }, "domain"},
		{"domain short tld", func(r *CreateRequest) { r.Domain = "example.x" }, "domain"},
		{"empty schema name", func(r *CreateRequest) { r.SchemaName = "" }, "schema_name"},
		{"schema starts with digit", func(r *CreateRequest) { r.SchemaName = "1church" }, "schema_name"},
		{"schema with dash", func(r *CreateRequest) { r.SchemaName = "my-church" }, "schema_name"},
		{"schema too long", func(r *CreateRequest) { r.SchemaName = strings.Repeat("a", 64) }, "schema_name"},
		{"settings not json", func(r *CreateRequest) { r.Settings = json.RawMessage(`{`) }, "settings"},
		{"settings unknown property", func(r *CreateRequest) { r.Settings = json.RawMessage(`{"color":"red"}`) }, "settings"},
		{"settings bad type", func(r *CreateRequest) { r.Settings = json.RawMessage(`{"timezone":7}`) }, "settings"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)

			err := v.Validate(context.Background(), req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestValidateAcceptsSettingsDocument(t *testing.T) {
	v := newTestValidator(t, nil)
	req := validRequest()
	req.Settings = json.RawMessage(`{
		"contact": {"email": "office@example.org", "phone": "+1 555 0100"},
		"timezone": "America/Chicago",
		"locale": "en-US",
		"features": {"visits": true, "reports": false}
	}`)
	require.NoError(t, v.Validate(context.Background(), req))
}

func TestValidateDetectsDuplicates(t *testing.T) {
	reg := &probeRegistry{
		domains: map[string]bool{"taken.example.org": true},
		schemas: map[string]bool{"taken_schema": true},
	}
	v := newTestValidator(t, reg)

	req := validRequest()
	req.Domain = "taken.example.org"
	var dup *DuplicateKeyError
	require.ErrorAs(t, v.Validate(context.Background(), req), &dup)
	require.Equal(t, "domain", dup.Field)

	req = validRequest()
	req.SchemaName = "taken_schema"
	require.ErrorAs(t, v.Validate(context.Background(), req), &dup)
	require.Equal(t, "schema_name", dup.Field)
}

func TestDeriveSchemaName(t *testing.T) {
	cases := []struct {
		domain string
		want   string
	}{
		{"first-baptist.example.org", "first_baptist_example_org"},
		{"GRACE.Example.ORG", "grace_example_org"},
		{"7hills.example.org", "tenant_7hills_example_org"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, DeriveSchemaName(tc.domain), "domain %q", tc.domain)
	}

	long := DeriveSchemaName(strings.Repeat("a", 80) + ".org")
	require.Len(t, long, MaxSchemaNameLength)
}
