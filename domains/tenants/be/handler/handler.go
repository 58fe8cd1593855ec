package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
	"github.com/steeplehq/tenant-provisioner/platform/go/logging"
)

// Service is the slice of the tenants service the HTTP layer needs.
type Service interface {
	Provision(ctx context.Context, req service.CreateRequest) (service.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (service.Tenant, error)
	List(ctx context.Context, includeInactive bool) ([]service.Tenant, error)
	MigrationStatus(ctx context.Context, id uuid.UUID) (service.MigrationStatus, error)
	ApplyPending(ctx context.Context, id uuid.UUID) (service.MigrationStatus, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Handler exposes the single-tenant surface over JSON.
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount attaches the tenant routes to the router.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/v1/tenants", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Delete("/{id}", h.deactivate)
		r.Get("/{id}/migrations", h.migrationStatus)
		r.Post("/{id}/migrations", h.applyPending)
	})
}

type tenantResponse struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Domain            string          `json:"domain"`
	SchemaName        string          `json:"schema_name"`
	APIKey            string          `json:"api_key,omitempty"`
	Settings          json.RawMessage `json:"settings,omitempty"`
	SchemaProvisioned bool            `json:"schema_provisioned"`
	MigrationsApplied bool            `json:"migrations_applied"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func toTenantResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		ID:                t.ID,
		Name:              t.Name,
		Domain:            t.Domain,
		SchemaName:        t.SchemaName,
		APIKey:            t.APIKey,
		Settings:          t.Settings,
		SchemaProvisioned: t.SchemaProvisioned,
		MigrationsApplied: t.MigrationsApplied,
		IsActive:          t.IsActive,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

type migrationStatusResponse struct {
	TenantID          uuid.UUID `json:"tenant_id"`
	SchemaName        string    `json:"schema_name"`
	CurrentRevision   int       `json:"current_revision"`
	LatestRevision    int       `json:"latest_revision"`
	PendingSteps      []string  `json:"pending_steps"`
	SchemaProvisioned bool      `json:"schema_provisioned"`
	MigrationsApplied bool      `json:"migrations_applied"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "Invalid request body", err.Error(), "")
		return
	}

	tenant, err := h.svc.Provision(r.Context(), req)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	tenants, err := h.svc.List(r.Context(), includeInactive)
	if err != nil {
		h.writeError(r, w, err)
		return
	}

	items := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		resp := toTenantResponse(t)
		resp.APIKey = "" // listing never exposes secrets
		items = append(items, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	tenant, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	resp := toTenantResponse(tenant)
	resp.APIKey = ""
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		h.writeError(r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) migrationStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	status, err := h.svc.MigrationStatus(r.Context(), id)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMigrationStatusResponse(status))
}

func (h *Handler) applyPending(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	status, err := h.svc.ApplyPending(r.Context(), id)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMigrationStatusResponse(status))
}

func toMigrationStatusResponse(s service.MigrationStatus) migrationStatusResponse {
	return migrationStatusResponse{
		TenantID:          s.TenantID,
		SchemaName:        s.SchemaName,
		CurrentRevision:   s.CurrentRevision,
		LatestRevision:    s.LatestRevision,
		PendingSteps:      s.PendingSteps,
		SchemaProvisioned: s.SchemaProvisioned,
		MigrationsApplied: s.MigrationsApplied,
	}
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteProblem(w, http.StatusBadRequest, "Invalid tenant id", "id must be a UUID", "id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, err error) {
	var (
		validation *service.ValidationError
		duplicate  *service.DuplicateKeyError
	)
	switch {
	case errors.As(err, &validation):
		WriteProblem(w, http.StatusBadRequest, "Validation failed", validation.Reason, validation.Field)
	case errors.As(err, &duplicate):
		WriteProblem(w, http.StatusConflict, "Identifier conflict", duplicate.Error(), duplicate.Field)
	case errors.Is(err, service.ErrNotFound):
		WriteProblem(w, http.StatusNotFound, "Tenant not found", err.Error(), "")
	default:
		logging.FromRequest(r, h.logger).Error("tenant request failed", zap.Error(err))
		WriteProblem(w, http.StatusInternalServerError, "Internal error", "provisioning failed, see server logs", "")
	}
}
