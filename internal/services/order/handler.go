package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/httpx"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/storage"
)

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes mounts order endpoints under /orders
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.CreateOrder)
	r.Get("/", h.ListOrders)
	r.Get("/{id}", h.GetOrder)
	r.Get("/{id}/history", h.History)
	r.Patch("/{id}/status", h.UpdateOrderStatus)
	r.Post("/{id}/details", h.AddLine)
	r.Patch("/{id}/details/{detailId}/quantity", h.UpdateLineQuantity)
	r.Patch("/{id}/details/{detailId}/status", h.UpdateLineStatus)
	r.Patch("/{id}/details/{detailId}/notes", h.UpdateLineNotes)
	r.Delete("/{id}/details/{detailId}", h.CancelLine)
}

// CreateOrder handles POST /orders requests
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("order_received", "Received order creation request", logger.RequestID(r.Context()), map[string]interface{}{
		"content_length": r.ContentLength,
		"remote_addr":    r.RemoteAddr,
	})

	var req models.CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "order_create_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /orders with optional status and table_id filters
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var filter storage.OrderFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.OrderStatus(raw)
		switch status {
		case models.OrderPending, models.OrderPreparing, models.OrderServed, models.OrderCancelled:
		default:
			httpx.WriteError(w, r, h.logger, "validation_failed", apperr.Validation("unknown order status %q", raw))
			return
		}
		filter.Status = &status
	}
	tableID, err := httpx.QueryID(r, "table_id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}
	filter.TableID = tableID

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "order_list_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "order_get_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

// History handles GET /orders/{id}/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	history, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "order_history_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, history)
}

// UpdateOrderStatus handles PATCH /orders/{id}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "order_status_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

// AddLine handles POST /orders/{id}/details
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	var req models.AddDetailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	line, err := h.service.AddLine(r.Context(), id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "line_add_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, line)
}

// UpdateLineQuantity handles PATCH /orders/{id}/details/{detailId}/quantity
func (h *Handler) UpdateLineQuantity(w http.ResponseWriter, r *http.Request) {
	orderID, lineID, ok := h.lineIDs(w, r)
	if !ok {
		return
	}

	var req models.UpdateQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	line, err := h.service.UpdateLineQuantity(r.Context(), orderID, lineID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "line_quantity_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, line)
}

// UpdateLineStatus handles PATCH /orders/{id}/details/{detailId}/status
func (h *Handler) UpdateLineStatus(w http.ResponseWriter, r *http.Request) {
	orderID, lineID, ok := h.lineIDs(w, r)
	if !ok {
		return
	}

	var req models.UpdateLineStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	line, err := h.service.UpdateLineStatus(r.Context(), orderID, lineID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "line_status_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, line)
}

// UpdateLineNotes handles PATCH /orders/{id}/details/{detailId}/notes
func (h *Handler) UpdateLineNotes(w http.ResponseWriter, r *http.Request) {
	orderID, lineID, ok := h.lineIDs(w, r)
	if !ok {
		return
	}

	var req models.UpdateNotesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	line, err := h.service.UpdateLineNotes(r.Context(), orderID, lineID, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "line_notes_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, line)
}

// CancelLine handles DELETE /orders/{id}/details/{detailId}. The line is
// kept with status cancelled.
func (h *Handler) CancelLine(w http.ResponseWriter, r *http.Request) {
	orderID, lineID, ok := h.lineIDs(w, r)
	if !ok {
		return
	}

	line, err := h.service.CancelLine(r.Context(), orderID, lineID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "line_cancel_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, line)
}

func (h *Handler) lineIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	orderID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return 0, 0, false
	}
	lineID, err := httpx.PathID(r, "detailId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return 0, 0, false
	}
	return orderID, lineID, true
}
