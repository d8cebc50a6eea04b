package table

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"restaurant-floor/internal/httpx"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/models"
)

// Handler handles HTTP requests for tables
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new table handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes mounts table endpoints under /tables
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/reservation", h.Reserve)
}

// Create handles POST /tables
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTableRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	t, err := h.service.Create(r.Context(), &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "table_create_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

// List handles GET /tables
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.List(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, "table_list_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tables)
}

// Get handles GET /tables/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "table_get_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

// UpdateStatus handles PATCH /tables/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	var req models.UpdateTableStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	t, err := h.service.UpdateStatus(r.Context(), id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "table_status_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

// Reserve handles POST /tables/{id}/reservation
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	var req models.ReserveTableRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	t, err := h.service.Reserve(r.Context(), id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "table_reserve_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /tables/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.WriteError(w, r, h.logger, "table_delete_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
