package invoice

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"restaurant-floor/internal/httpx"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/models"
)

// Handler handles HTTP requests for invoices, promotions and points
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new invoice handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes mounts invoice endpoints under /invoices
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.CreateInvoice)
	r.Get("/{id}", h.GetInvoice)
	r.Get("/{id}/promotions", h.Candidates)
	r.Post("/{id}/customer-discount", h.ApplyCustomerDiscount)
	r.Patch("/{id}/paid", h.Pay)
	r.Patch("/{id}/cash", h.ConfirmCash)
	r.Patch("/{id}/cancel", h.CancelInvoice)
}

// RegisterPromotionRoutes mounts the catalog under /promotions
func (h *Handler) RegisterPromotionRoutes(r chi.Router) {
	r.Post("/", h.CreatePromotion)
	r.Get("/", h.ListPromotions)
}

// RegisterCustomerRoutes mounts loyalty endpoints under /customers
func (h *Handler) RegisterCustomerRoutes(r chi.Router) {
	r.Get("/{id}/points", h.PointsBalance)
	r.Post("/{id}/points", h.GrantPoints)
}

// CreateInvoice handles POST /invoices
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req models.CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "invoice_create_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, inv)
}

// GetInvoice handles GET /invoices/{id}
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "invoice_get_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// Candidates handles GET /invoices/{id}/promotions
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	candidates, err := h.service.Candidates(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "invoice_candidates_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, candidates)
}

// ApplyCustomerDiscount handles POST /invoices/{id}/customer-discount
func (h *Handler) ApplyCustomerDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	var req models.CustomerDiscountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	inv, err := h.service.ApplyCustomerDiscount(r.Context(), id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "customer_discount_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// Pay handles PATCH /invoices/{id}/paid
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	var req models.PayInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	inv, err := h.service.Pay(r.Context(), id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "invoice_pay_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// ConfirmCash handles PATCH /invoices/{id}/cash
func (h *Handler) ConfirmCash(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	var req models.ConfirmCashRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	inv, err := h.service.ConfirmCash(r.Context(), id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "invoice_cash_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// CancelInvoice handles PATCH /invoices/{id}/cancel
func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	inv, err := h.service.CancelInvoice(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "invoice_cancel_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

// CreatePromotion handles POST /promotions
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePromotionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	promo, err := h.service.CreatePromotion(r.Context(), &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "promotion_create_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, promo)
}

// ListPromotions handles GET /promotions
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.service.ListPromotions(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, "promotion_list_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, promos)
}

// PointsBalance handles GET /customers/{id}/points
func (h *Handler) PointsBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	balance, err := h.service.PointsBalance(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "points_balance_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, balance)
}

// GrantPoints handles POST /customers/{id}/points
func (h *Handler) GrantPoints(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	var req models.GrantPointsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, "validation_failed", err)
		return
	}

	balance, err := h.service.GrantPoints(r.Context(), id, &req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, "points_grant_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, balance)
}
