package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/handler"
	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
)

type mockService struct {
	provisionFn       func(ctx context.Context, req service.CreateRequest) (service.Tenant, error)
	getFn             func(ctx context.Context, id uuid.UUID) (service.Tenant, error)
	listFn            func(ctx context.Context, includeInactive bool) ([]service.Tenant, error)
	migrationStatusFn func(ctx context.Context, id uuid.UUID) (service.MigrationStatus, error)
	applyPendingFn    func(ctx context.Context, id uuid.UUID) (service.MigrationStatus, error)
	deactivateFn      func(ctx context.Context, id uuid.UUID) error
}

func (m *mockService) Provision(ctx context.Context, req service.CreateRequest) (service.Tenant, error) {
	return m.provisionFn(ctx, req)
}

func (m *mockService) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	return m.getFn(ctx, id)
}

func (m *mockService) List(ctx context.Context, includeInactive bool) ([]service.Tenant, error) {
	return m.listFn(ctx, includeInactive)
}

func (m *mockService) MigrationStatus(ctx context.Context, id uuid.UUID) (service.MigrationStatus, error) {
	return m.migrationStatusFn(ctx, id)
}

func (m *mockService) ApplyPending(ctx context.Context, id uuid.UUID) (service.MigrationStatus, error) {
	return m.applyPendingFn(ctx, id)
}

func (m *mockService) Deactivate(ctx context.Context, id uuid.UUID) error {
	return m.deactivateFn(ctx, id)
}

func newRouter(t *testing.T, svc *mockService) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	handler.New(svc, zaptest.NewLogger(t)).Mount(r)
	return r
}

func sampleTenant() service.Tenant {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return service.Tenant{
		ID:                uuid.New(),
		Name:              "First Baptist",
		Domain:            "first-baptist.example.org",
		SchemaName:        "first_baptist_example_org",
		APIKey:            "tk_0123456789abcdef0123456789abcdef",
		SchemaProvisioned: true,
		MigrationsApplied: true,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCreateTenant(t *testing.T) {
	tenant := sampleTenant()
	svc := &mockService{provisionFn: func(ctx context.Context, req service.CreateRequest) (service.Tenant, error) {
		require.Equal(t, "First Baptist", req.Name)
		require.Equal(t, "first-baptist.example.org", req.Domain)
		return tenant, nil
	}}
	router := newRouter(t, svc)

	body := `{"name":"First Baptist","domain":"first-baptist.example.org"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tenants", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, tenant.ID.String(), resp["id"])
	require.Equal(t, tenant.APIKey, resp["api_key"])
	require.Equal(t, tenant.SchemaName, resp["schema_name"])
}

func TestCreateTenantValidationFailure(t *testing.T) {
	svc := &mockService{provisionFn: func(ctx context.Context, req service.CreateRequest) (service.Tenant, error) {
		return service.Tenant{}, &service.ValidationError{Field: "domain", Reason: "must not be empty"}
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/tenants", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem handler.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "domain", problem.Field)
}

func TestCreateTenantDuplicate(t *testing.T) {
	svc := &mockService{provisionFn: func(ctx context.Context, req service.CreateRequest) (service.Tenant, error) {
		return service.Tenant{}, &service.DuplicateKeyError{Field: "domain"}
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/tenants", strings.NewReader(`{"name":"x","domain":"a.example.org"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateTenantInternalError(t *testing.T) {
	svc := &mockService{provisionFn: func(ctx context.Context, req service.CreateRequest) (service.Tenant, error) {
		return service.Tenant{}, &service.MigrationError{SchemaName: "x", Step: 2, StepName: "create_visits"}
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/tenants", strings.NewReader(`{"name":"x","domain":"a.example.org"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal step details stay out of the response body.
	require.NotContains(t, rec.Body.String(), "create_visits")
}

func TestGetTenant(t *testing.T) {
	tenant := sampleTenant()
	svc := &mockService{getFn: func(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
		require.Equal(t, tenant.ID, id)
		return tenant, nil
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants/"+tenant.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// Reads never leak the key.
	_, present := resp["api_key"]
	require.False(t, present)
}

func TestGetTenantNotFound(t *testing.T) {
	svc := &mockService{getFn: func(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
		return service.Tenant{}, service.ErrNotFound
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTenantBadID(t *testing.T) {
	router := newRouter(t, &mockService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTenants(t *testing.T) {
	svc := &mockService{listFn: func(ctx context.Context, includeInactive bool) ([]service.Tenant, error) {
		require.True(t, includeInactive)
		return []service.Tenant{sampleTenant()}, nil
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants?include_inactive=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "api_key")
}

func TestMigrationStatusEndpoint(t *testing.T) {
	id := uuid.New()
	svc := &mockService{migrationStatusFn: func(ctx context.Context, got uuid.UUID) (service.MigrationStatus, error) {
		require.Equal(t, id, got)
		return service.MigrationStatus{
			TenantID:        id,
			SchemaName:      "first_baptist_example_org",
			CurrentRevision: 2,
			LatestRevision:  3,
			PendingSteps:    []string{"0003_create_reports"},
		}, nil
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants/"+id.String()+"/migrations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(2), resp["current_revision"])
	require.Equal(t, float64(3), resp["latest_revision"])
}

func TestApplyPendingEndpoint(t *testing.T) {
	id := uuid.New()
	svc := &mockService{applyPendingFn: func(ctx context.Context, got uuid.UUID) (service.MigrationStatus, error) {
		return service.MigrationStatus{TenantID: got, CurrentRevision: 3, LatestRevision: 3}, nil
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/tenants/"+id.String()+"/migrations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeactivateTenant(t *testing.T) {
	id := uuid.New()
	called := false
	svc := &mockService{deactivateFn: func(ctx context.Context, got uuid.UUID) error {
		called = true
		require.Equal(t, id, got)
		return nil
	}}
	router := newRouter(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/v1/tenants/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, called)
}
