// Package storage defines the persistence boundary for tables, orders,
// invoices, promotions and loyalty points.
package storage

import (
	"context"
	"time"

	"restaurant-floor/internal/models"
)

// OrderFilter narrows ListOrders
type OrderFilter struct {
	Status  *models.OrderStatus
	TableID *int64
}

// Repository is implemented by the postgres and memory stores, and by the
// transaction-scoped views they hand to WithTx callbacks.
//
// Conditional writes return apperr.ErrStaleState when the row no longer
// matches what the caller last read. Lookups of missing rows return
// apperr.ErrNotFound.
type Repository interface {
	CreateTable(ctx context.Context, t *models.Table) error
	GetTable(ctx context.Context, id int64) (*models.Table, error)
	// LockTable reads a table and holds it until the surrounding
	// transaction ends.
	LockTable(ctx context.Context, id int64) (*models.Table, error)
	ListTables(ctx context.Context) ([]models.Table, error)
	UpdateTable(ctx context.Context, t *models.Table) error
	DeleteTable(ctx context.Context, id int64) error

	NextOrderSequence(ctx context.Context, date time.Time) (int, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	// UpdateOrderStatus moves an order from one status to another.
	UpdateOrderStatus(ctx context.Context, id int64, from, to models.OrderStatus) error
	AppendOrderHistory(ctx context.Context, orderID int64, entry models.OrderStatusHistory) error
	ListOrderHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error)

	AddDetail(ctx context.Context, d *models.OrderDetail) error
	// UpdateDetail writes d only if the stored line still has prevStatus
	// and prevQuantity.
	UpdateDetail(ctx context.Context, d *models.OrderDetail, prevStatus models.LineStatus, prevQuantity int) error

	// CreateInvoice fails with apperr.ErrConflict when the order already
	// has a non-cancelled invoice.
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	GetActiveInvoiceByOrder(ctx context.Context, orderID int64) (*models.Invoice, error)
	// UpdateInvoice writes inv only if the stored invoice is still in
	// prevStatus.
	UpdateInvoice(ctx context.Context, inv *models.Invoice, prevStatus models.PaymentStatus) error

	CreatePromotion(ctx context.Context, p *models.Promotion) error
	GetPromotion(ctx context.Context, id int64) (*models.Promotion, error)
	GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error)
	// ListPromotions returns the catalog in insertion order.
	ListPromotions(ctx context.Context) ([]models.Promotion, error)
	// IncrementPromotionUses fails with apperr.ErrConflict once max uses
	// is reached.
	IncrementPromotionUses(ctx context.Context, id int64) error

	PointsBalance(ctx context.Context, customerID int64) (int64, error)
	// AddPoints appends to the ledger. A debit that would take the balance
	// below zero fails with apperr.ErrInsufficientPoints.
	AddPoints(ctx context.Context, entry models.PointsTransaction) error
}

// Store is a Repository that can run transactions
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Ping(ctx context.Context) error
	Close()
}
