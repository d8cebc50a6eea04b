// Package api assembles the HTTP surface of the floor service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"restaurant-floor/internal/httpx"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/messaging"
	"restaurant-floor/internal/services/invoice"
	"restaurant-floor/internal/services/order"
	"restaurant-floor/internal/services/table"
	"restaurant-floor/internal/storage"
)

// Deps is everything the router needs to build the services
type Deps struct {
	Store          storage.Store
	Events         messaging.EventPublisher
	Logger         *logger.Logger
	TaxRate        decimal.Decimal
	RequestTimeout time.Duration
}

// NewRouter wires the services onto a chi router
func NewRouter(d Deps) http.Handler {
	tables := table.NewHandler(table.NewService(d.Store, d.Events, d.Logger), d.Logger)
	orders := order.NewHandler(order.NewService(d.Store, d.Events, d.Logger), d.Logger)
	invoices := invoice.NewHandler(invoice.NewService(d.Store, d.Events, d.Logger, d.TaxRate), d.Logger)

	r := chi.NewRouter()
	r.Use(httpx.WithLogging(d.Logger, d.RequestTimeout))

	r.Get("/health", health(d.Store, d.Logger))
	r.Route("/tables", tables.RegisterRoutes)
	r.Route("/orders", orders.RegisterRoutes)
	r.Route("/invoices", invoices.RegisterRoutes)
	r.Route("/promotions", invoices.RegisterPromotionRoutes)
	r.Route("/customers", invoices.RegisterCustomerRoutes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})
	return r
}

// health reports whether storage answers within two seconds
func health(store storage.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			log.Error("health_check_failed", "Storage ping failed", logger.RequestID(r.Context()), err, nil)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
