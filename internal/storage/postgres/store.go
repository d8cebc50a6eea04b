// Package postgres implements storage.Store on top of pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/database"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/storage"
)

// SQLSTATE codes we translate
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store is the PostgreSQL storage.Store
type Store struct {
	*Repo
	db *database.DB
}

var _ storage.Store = (*Store)(nil)

// New wraps an open database
func New(db *database.DB) *Store {
	return &Store{Repo: &Repo{q: db}, db: db}
}

// WithTx runs fn in a single database transaction
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r storage.Repository) error) error {
	return s.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &Repo{q: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() { s.db.Close() }

// Repo runs queries against either the pool or a transaction
type Repo struct {
	q querier
}

// translate maps driver errors onto the apperr taxonomy
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return apperr.Conflict("%s already exists", what)
		case foreignKeyViolation:
			return apperr.Conflict("%s is still referenced", what)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func scanTable(row pgx.Row) (*models.Table, error) {
	var t models.Table
	err := row.Scan(
		&t.ID, &t.Number, &t.Capacity, &t.LocationID, &t.Floor, &t.Status,
		&t.BrokenReason, &t.BrokenBy, &t.ReservationCode, &t.ActiveOrderID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) CreateTable(ctx context.Context, t *models.Table) error {
	err := r.q.QueryRow(ctx, database.InsertTableSQL, t.Number, t.Capacity, t.LocationID, t.Floor, t.Status).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return translate(err, fmt.Sprintf("table number %d", t.Number))
}

func (r *Repo) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	t, err := scanTable(r.q.QueryRow(ctx, database.GetTableSQL, id))
	return t, translate(err, fmt.Sprintf("table %d", id))
}

func (r *Repo) LockTable(ctx context.Context, id int64) (*models.Table, error) {
	t, err := scanTable(r.q.QueryRow(ctx, database.LockTableSQL, id))
	return t, translate(err, fmt.Sprintf("table %d", id))
}

func (r *Repo) ListTables(ctx context.Context) ([]models.Table, error) {
	rows, err := r.q.Query(ctx, database.ListTablesSQL)
	if err != nil {
		return nil, translate(err, "tables")
	}
	defer rows.Close()

	tables := []models.Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, translate(err, "tables")
		}
		tables = append(tables, *t)
	}
	return tables, translate(rows.Err(), "tables")
}

func (r *Repo) UpdateTable(ctx context.Context, t *models.Table) error {
	err := r.q.QueryRow(ctx, database.UpdateTableSQL,
		t.ID, t.Status, t.BrokenReason, t.BrokenBy, t.ReservationCode, t.ActiveOrderID, t.Capacity, t.Floor,
	).Scan(&t.UpdatedAt)
	return translate(err, fmt.Sprintf("table %d", t.ID))
}

func (r *Repo) DeleteTable(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, database.DeleteTableSQL, id)
	if err != nil {
		return translate(err, fmt.Sprintf("table %d", id))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("table %d", id)
	}
	return nil
}

func (r *Repo) NextOrderSequence(ctx context.Context, date time.Time) (int, error) {
	// Serializes number allocation until the surrounding transaction ends.
	if _, err := r.q.Exec(ctx, database.LockOrderNumbersSQL); err != nil {
		return 0, fmt.Errorf("lock order numbers: %w", err)
	}
	var next int
	err := r.q.QueryRow(ctx, database.GetNextOrderNumberSQL, models.OrderNumberPrefix(date)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return next, nil
}

func (r *Repo) CreateOrder(ctx context.Context, o *models.Order) error {
	err := r.q.QueryRow(ctx, database.InsertOrderSQL, o.Number, o.Type, o.TableID, o.CustomerID, o.StaffID, o.Status).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	return translate(err, fmt.Sprintf("order %s", o.Number))
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.Number, &o.Type, &o.TableID, &o.CustomerID, &o.StaffID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanDetail(row pgx.Row) (models.OrderDetail, error) {
	var d models.OrderDetail
	err := row.Scan(&d.ID, &d.OrderID, &d.DishID, &d.Quantity, &d.UnitPrice, &d.SpecialInstructions, &d.Status, &d.UpdatedAt)
	return d, err
}

func (r *Repo) loadOrder(ctx context.Context, sql string, id int64) (*models.Order, error) {
	what := fmt.Sprintf("order %d", id)
	o, err := scanOrder(r.q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, translate(err, what)
	}

	rows, err := r.q.Query(ctx, database.ListDetailsSQL, id)
	if err != nil {
		return nil, translate(err, what)
	}
	defer rows.Close()

	o.Details = []models.OrderDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, translate(err, what)
		}
		o.Details = append(o.Details, d)
	}
	return o, translate(rows.Err(), what)
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return r.loadOrder(ctx, database.GetOrderSQL, id)
}

func (r *Repo) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return r.loadOrder(ctx, database.LockOrderSQL, id)
}

func (r *Repo) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]models.Order, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	rows, err := r.q.Query(ctx, database.ListOrdersSQL, status, filter.TableID)
	if err != nil {
		return nil, translate(err, "orders")
	}
	orders := []models.Order{}
	index := map[int64]int{}
	ids := []int64{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, translate(err, "orders")
		}
		o.Details = []models.OrderDetail{}
		index[o.ID] = len(orders)
		ids = append(ids, o.ID)
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err, "orders")
	}
	if len(ids) == 0 {
		return orders, nil
	}

	detailRows, err := r.q.Query(ctx, database.ListDetailsForOrdersSQL, ids)
	if err != nil {
		return nil, translate(err, "order details")
	}
	defer detailRows.Close()
	for detailRows.Next() {
		d, err := scanDetail(detailRows)
		if err != nil {
			return nil, translate(err, "order details")
		}
		i := index[d.OrderID]
		orders[i].Details = append(orders[i].Details, d)
	}
	return orders, translate(detailRows.Err(), "order details")
}

func (r *Repo) UpdateOrderStatus(ctx context.Context, id int64, from, to models.OrderStatus) error {
	tag, err := r.q.Exec(ctx, database.UpdateOrderStatusSQL, id, from, to)
	if err != nil {
		return translate(err, fmt.Sprintf("order %d", id))
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, database.OrderExistsSQL, fmt.Sprintf("order %d", id), id)
	}
	return nil
}

// missingOrStale tells a row that vanished from one that moved on
func (r *Repo) missingOrStale(ctx context.Context, existsSQL, what string, args ...interface{}) error {
	var exists bool
	if err := r.q.QueryRow(ctx, existsSQL, args...).Scan(&exists); err != nil {
		return translate(err, what)
	}
	if !exists {
		return apperr.NotFound("%s", what)
	}
	return apperr.StaleState("%s changed since it was read", what)
}

func (r *Repo) AppendOrderHistory(ctx context.Context, orderID int64, entry models.OrderStatusHistory) error {
	_, err := r.q.Exec(ctx, database.InsertOrderStatusLogSQL, orderID, entry.Status, entry.ChangedBy, entry.Notes)
	return translate(err, fmt.Sprintf("order %d history", orderID))
}

func (r *Repo) ListOrderHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	what := fmt.Sprintf("order %d", orderID)
	var exists bool
	if err := r.q.QueryRow(ctx, database.OrderExistsSQL, orderID).Scan(&exists); err != nil {
		return nil, translate(err, what)
	}
	if !exists {
		return nil, apperr.NotFound("%s", what)
	}

	rows, err := r.q.Query(ctx, database.GetOrderStatusHistorySQL, orderID)
	if err != nil {
		return nil, translate(err, what)
	}
	defer rows.Close()

	history := []models.OrderStatusHistory{}
	for rows.Next() {
		var h models.OrderStatusHistory
		if err := rows.Scan(&h.Status, &h.ChangedBy, &h.ChangedAt, &h.Notes); err != nil {
			return nil, translate(err, what)
		}
		history = append(history, h)
	}
	return history, translate(rows.Err(), what)
}

func (r *Repo) AddDetail(ctx context.Context, d *models.OrderDetail) error {
	err := r.q.QueryRow(ctx, database.InsertDetailSQL,
		d.OrderID, d.DishID, d.Quantity, d.UnitPrice, d.SpecialInstructions, d.Status,
	).Scan(&d.ID, &d.UpdatedAt)
	return translate(err, fmt.Sprintf("line on order %d", d.OrderID))
}

func (r *Repo) UpdateDetail(ctx context.Context, d *models.OrderDetail, prevStatus models.LineStatus, prevQuantity int) error {
	what := fmt.Sprintf("order line %d", d.ID)
	err := r.q.QueryRow(ctx, database.UpdateDetailSQL,
		d.ID, d.OrderID, d.Quantity, d.SpecialInstructions, d.Status, prevStatus, prevQuantity,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missingOrStale(ctx, database.DetailExistsSQL, what, d.ID, d.OrderID)
	}
	return translate(err, what)
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var inv models.Invoice
	err := row.Scan(
		&inv.ID, &inv.OrderID, &inv.CustomerID, &inv.Subtotal, &inv.Tax, &inv.DiscountAmount, &inv.TotalAmount,
		&inv.DiscountSource, &inv.PaymentMethod, &inv.PaymentStatus, &inv.AppliedPromotionID, &inv.AppliedPointsUsed,
		&inv.CustomerPromotionID, &inv.CustomerPointsRequested, &inv.AmountReceived, &inv.ChangeDue,
		&inv.LoyaltyPointsEarned, &inv.ConfirmedBy, &inv.Notes, &inv.CreatedAt, &inv.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *Repo) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	err := r.q.QueryRow(ctx, database.InsertInvoiceSQL,
		inv.OrderID, inv.CustomerID, inv.Subtotal, inv.Tax, inv.DiscountAmount, inv.TotalAmount, inv.DiscountSource,
		inv.PaymentMethod, inv.PaymentStatus, inv.AppliedPromotionID, inv.AppliedPointsUsed, inv.CustomerPromotionID,
		inv.CustomerPointsRequested, inv.AmountReceived, inv.ChangeDue, inv.LoyaltyPointsEarned, inv.ConfirmedBy,
		inv.Notes, inv.PaidAt,
	).Scan(&inv.ID, &inv.CreatedAt)
	return translate(err, fmt.Sprintf("invoice for order %d", inv.OrderID))
}

func (r *Repo) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, database.GetInvoiceSQL, id))
	return inv, translate(err, fmt.Sprintf("invoice %d", id))
}

func (r *Repo) GetActiveInvoiceByOrder(ctx context.Context, orderID int64) (*models.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, database.GetActiveInvoiceByOrderSQL, orderID))
	return inv, translate(err, fmt.Sprintf("invoice for order %d", orderID))
}

func (r *Repo) UpdateInvoice(ctx context.Context, inv *models.Invoice, prevStatus models.PaymentStatus) error {
	what := fmt.Sprintf("invoice %d", inv.ID)
	tag, err := r.q.Exec(ctx, database.UpdateInvoiceSQL,
		inv.ID, inv.CustomerID, inv.Subtotal, inv.Tax, inv.DiscountAmount, inv.TotalAmount, inv.DiscountSource,
		inv.PaymentMethod, inv.PaymentStatus, inv.AppliedPromotionID, inv.AppliedPointsUsed, inv.CustomerPromotionID,
		inv.CustomerPointsRequested, inv.AmountReceived, inv.ChangeDue, inv.LoyaltyPointsEarned, inv.ConfirmedBy,
		inv.Notes, inv.PaidAt, prevStatus,
	)
	if err != nil {
		return translate(err, what)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, database.InvoiceExistsSQL, what, inv.ID)
	}
	return nil
}

func scanPromotion(row pgx.Row) (*models.Promotion, error) {
	var p models.Promotion
	var value string
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &value, &p.MinimumOrderAmount, &p.MaxUses, &p.CurrentUses, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if p.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("promotion %d discount_value %q: %w", p.ID, value, err)
	}
	return &p, nil
}

func (r *Repo) CreatePromotion(ctx context.Context, p *models.Promotion) error {
	err := r.q.QueryRow(ctx, database.InsertPromotionSQL,
		p.Code, p.Name, p.Type, p.DiscountValue.String(), p.MinimumOrderAmount, p.MaxUses,
	).Scan(&p.ID, &p.CurrentUses, &p.CreatedAt)
	return translate(err, fmt.Sprintf("promotion %s", p.Code))
}

func (r *Repo) GetPromotion(ctx context.Context, id int64) (*models.Promotion, error) {
	p, err := scanPromotion(r.q.QueryRow(ctx, database.GetPromotionSQL, id))
	return p, translate(err, fmt.Sprintf("promotion %d", id))
}

func (r *Repo) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	p, err := scanPromotion(r.q.QueryRow(ctx, database.GetPromotionByCodeSQL, code))
	return p, translate(err, fmt.Sprintf("promotion %s", code))
}

func (r *Repo) ListPromotions(ctx context.Context) ([]models.Promotion, error) {
	rows, err := r.q.Query(ctx, database.ListPromotionsSQL)
	if err != nil {
		return nil, translate(err, "promotions")
	}
	defer rows.Close()

	promos := []models.Promotion{}
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, translate(err, "promotions")
		}
		promos = append(promos, *p)
	}
	return promos, translate(rows.Err(), "promotions")
}

func (r *Repo) IncrementPromotionUses(ctx context.Context, id int64) error {
	what := fmt.Sprintf("promotion %d", id)
	tag, err := r.q.Exec(ctx, database.IncrementPromotionUsesSQL, id)
	if err != nil {
		return translate(err, what)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, database.PromotionExistsSQL, id).Scan(&exists); err != nil {
			return translate(err, what)
		}
		if !exists {
			return apperr.NotFound("%s", what)
		}
		return apperr.Conflict("%s has no uses left", what)
	}
	return nil
}

func (r *Repo) PointsBalance(ctx context.Context, customerID int64) (int64, error) {
	var balance int64
	err := r.q.QueryRow(ctx, database.GetPointsBalanceSQL, customerID).Scan(&balance)
	return balance, translate(err, fmt.Sprintf("points for customer %d", customerID))
}

// AddPoints moves the account balance and appends to the ledger. Callers
// run it inside WithTx so both writes commit together.
func (r *Repo) AddPoints(ctx context.Context, entry models.PointsTransaction) error {
	what := fmt.Sprintf("points for customer %d", entry.CustomerID)
	if entry.Delta < 0 {
		tag, err := r.q.Exec(ctx, database.DebitPointsSQL, entry.CustomerID, entry.Delta)
		if err != nil {
			return translate(err, what)
		}
		if tag.RowsAffected() == 0 {
			return apperr.InsufficientPoints("customer %d cannot cover %d points", entry.CustomerID, -entry.Delta)
		}
	} else {
		if _, err := r.q.Exec(ctx, database.CreditPointsSQL, entry.CustomerID, entry.Delta); err != nil {
			return translate(err, what)
		}
	}
	_, err := r.q.Exec(ctx, database.InsertPointsTransactionSQL, entry.CustomerID, entry.Delta, entry.Reason, entry.InvoiceID)
	return translate(err, what)
}
