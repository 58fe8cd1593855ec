package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/tenant-provisioner/domains/batches/be/service"
	tenanthandler "github.com/steeplehq/tenant-provisioner/domains/tenants/be/handler"
	tenants "github.com/steeplehq/tenant-provisioner/domains/tenants/be/service"
	"github.com/steeplehq/tenant-provisioner/platform/go/logging"
)

// Handler exposes the batch orchestration surface over JSON.
type Handler struct {
	orchestrator *service.Orchestrator
	logger       *zap.Logger
}

// New constructs a Handler instance.
func New(orchestrator *service.Orchestrator, logger *zap.Logger) *Handler {
	if orchestrator == nil {
		panic("batch orchestrator is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{orchestrator: orchestrator, logger: logger}
}

// Mount attaches the batch routes to the router.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/", h.listActive)
		r.Delete("/", h.cleanup)
		r.Get("/{id}", h.status)
	})
}

type submitRequest struct {
	Tenants         []tenants.CreateRequest `json:"tenants"`
	Concurrency     int                     `json:"concurrency"`
	ContinueOnError bool                    `json:"continue_on_error"`
}

type itemResultResponse struct {
	Index     int             `json:"index"`
	Name      string          `json:"name"`
	Domain    string          `json:"domain"`
	Success   bool            `json:"success"`
	TenantID  *uuid.UUID      `json:"tenant_id,omitempty"`
	APIKey    string          `json:"api_key,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

type batchResponse struct {
	BatchID     uuid.UUID            `json:"batch_id"`
	Status      service.Status       `json:"status"`
	Total       int                  `json:"total"`
	Succeeded   int                  `json:"succeeded"`
	Failed      int                  `json:"failed"`
	Pending     int                  `json:"pending"`
	Concurrency int                  `json:"concurrency"`
	Results     []itemResultResponse `json:"results,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	ElapsedMS   int64                `json:"elapsed_ms"`
}

func toBatchResponse(snap service.Snapshot) batchResponse {
	resp := batchResponse{
		BatchID:     snap.ID,
		Status:      snap.Status,
		Total:       snap.Total,
		Succeeded:   snap.Succeeded,
		Failed:      snap.Failed,
		Pending:     snap.Pending,
		Concurrency: snap.Concurrency,
		CreatedAt:   snap.CreatedAt,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
		ElapsedMS:   snap.Elapsed.Milliseconds(),
	}
	for _, res := range snap.Results {
		item := itemResultResponse{
			Index:     res.Index,
			Name:      res.Name,
			Domain:    res.Domain,
			Success:   res.Success,
			Error:     res.Error,
			ErrorKind: res.ErrorKind,
			ElapsedMS: res.Elapsed.Milliseconds(),
		}
		if res.Tenant != nil {
			id := res.Tenant.ID
			item.TenantID = &id
			item.APIKey = res.Tenant.APIKey
			item.Settings = res.Tenant.Settings
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		tenanthandler.WriteProblem(w, http.StatusBadRequest, "Invalid request body", err.Error(), "")
		return
	}
	if req.Concurrency == 0 {
		req.Concurrency = 1
	}

	id, err := h.orchestrator.Submit(r.Context(), req.Tenants, req.Concurrency, req.ContinueOnError)
	if err != nil {
		h.writeError(r, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "/v1/batches/"+id.String())
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"batch_id": id,
		"status":   service.StatusPending,
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		tenanthandler.WriteProblem(w, http.StatusBadRequest, "Invalid batch id", "id must be a UUID", "id")
		return
	}
	snap, err := h.orchestrator.Status(id)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(snap))
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	snaps := h.orchestrator.ListActive()
	items := make([]batchResponse, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, toBatchResponse(snap))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	olderThan := 24 * time.Hour
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			tenanthandler.WriteProblem(w, http.StatusBadRequest, "Invalid older_than", "older_than must be a non-negative duration such as 24h", "older_than")
			return
		}
		olderThan = parsed
	}
	removed := h.orchestrator.Cleanup(olderThan)
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, err error) {
	var submission *service.SubmissionError
	switch {
	case errors.As(err, &submission):
		tenanthandler.WriteProblem(w, http.StatusBadRequest, "Invalid batch submission", submission.Reason, "")
	case errors.Is(err, service.ErrNotFound):
		tenanthandler.WriteProblem(w, http.StatusNotFound, "Batch not found", err.Error(), "")
	default:
		logging.FromRequest(r, h.logger).Error("batch request failed", zap.Error(err))
		tenanthandler.WriteProblem(w, http.StatusInternalServerError, "Internal error", "batch request failed, see server logs", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
