// Package memory is an in-process Store used for local runs and tests.
// A single mutex serializes all access; transactions work on a copy of the
// state that replaces the original on success.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/storage"
)

type state struct {
	tables     map[int64]models.Table
	orders     map[int64]models.Order
	details    map[int64]models.OrderDetail
	history    map[int64][]models.OrderStatusHistory
	invoices   map[int64]models.Invoice
	promotions map[int64]models.Promotion
	points     []models.PointsTransaction

	nextTable, nextOrder, nextDetail, nextInvoice, nextPromotion, nextPoints int64
}

func newState() *state {
	return &state{
		tables:     map[int64]models.Table{},
		orders:     map[int64]models.Order{},
		details:    map[int64]models.OrderDetail{},
		history:    map[int64][]models.OrderStatusHistory{},
		invoices:   map[int64]models.Invoice{},
		promotions: map[int64]models.Promotion{},
	}
}

// clone copies the maps. Pointer fields inside entities are never mutated
// in place, so a shallow copy of each value is enough.
func (s *state) clone() *state {
	c := *s
	c.tables = make(map[int64]models.Table, len(s.tables))
	for k, v := range s.tables {
		c.tables[k] = v
	}
	c.orders = make(map[int64]models.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.details = make(map[int64]models.OrderDetail, len(s.details))
	for k, v := range s.details {
		c.details[k] = v
	}
	c.history = make(map[int64][]models.OrderStatusHistory, len(s.history))
	for k, v := range s.history {
		c.history[k] = append([]models.OrderStatusHistory(nil), v...)
	}
	c.invoices = make(map[int64]models.Invoice, len(s.invoices))
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	c.promotions = make(map[int64]models.Promotion, len(s.promotions))
	for k, v := range s.promotions {
		c.promotions[k] = v
	}
	c.points = append([]models.PointsTransaction(nil), s.points...)
	return &c
}

// Store is the in-memory storage.Store
type Store struct {
	repo
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	s := &Store{data: newState(), now: func() time.Time { return time.Now().UTC() }}
	s.repo = repo{store: s}
	return s
}

// SetClock overrides the time source
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// WithTx runs fn against a private copy of the state and publishes the copy
// only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.data.clone()
	if err := fn(ctx, &repo{store: s, tx: tx}); err != nil {
		return err
	}
	s.data = tx
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

// repo runs each call under the store mutex, or against the transaction
// copy when tx is set.
type repo struct {
	store *Store
	tx    *state
}

func (r *repo) view() (*state, func()) {
	if r.tx != nil {
		return r.tx, func() {}
	}
	r.store.mu.Lock()
	return r.store.data, r.store.mu.Unlock
}

func (r *repo) CreateTable(ctx context.Context, t *models.Table) error {
	st, done := r.view()
	defer done()

	for _, existing := range st.tables {
		if existing.Number == t.Number && existing.LocationID == t.LocationID {
			return apperr.Conflict("table number %d already exists at location %d", t.Number, t.LocationID)
		}
	}
	st.nextTable++
	t.ID = st.nextTable
	t.CreatedAt = r.store.now()
	t.UpdatedAt = t.CreatedAt
	st.tables[t.ID] = *t
	return nil
}

func (r *repo) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	st, done := r.view()
	defer done()

	t, ok := st.tables[id]
	if !ok {
		return nil, apperr.NotFound("table %d", id)
	}
	return &t, nil
}

func (r *repo) LockTable(ctx context.Context, id int64) (*models.Table, error) {
	return r.GetTable(ctx, id)
}

func (r *repo) ListTables(ctx context.Context) ([]models.Table, error) {
	st, done := r.view()
	defer done()

	out := make([]models.Table, 0, len(st.tables))
	for _, t := range st.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) UpdateTable(ctx context.Context, t *models.Table) error {
	st, done := r.view()
	defer done()

	if _, ok := st.tables[t.ID]; !ok {
		return apperr.NotFound("table %d", t.ID)
	}
	t.UpdatedAt = r.store.now()
	st.tables[t.ID] = *t
	return nil
}

func (r *repo) DeleteTable(ctx context.Context, id int64) error {
	st, done := r.view()
	defer done()

	if _, ok := st.tables[id]; !ok {
		return apperr.NotFound("table %d", id)
	}
	delete(st.tables, id)
	return nil
}

func (r *repo) NextOrderSequence(ctx context.Context, date time.Time) (int, error) {
	st, done := r.view()
	defer done()

	prefix := strings.TrimSuffix(models.OrderNumberPrefix(date), "%")
	next := 1
	for _, o := range st.orders {
		if strings.HasPrefix(o.Number, prefix) {
			next++
		}
	}
	return next, nil
}

func (r *repo) CreateOrder(ctx context.Context, o *models.Order) error {
	st, done := r.view()
	defer done()

	for _, existing := range st.orders {
		if existing.Number == o.Number {
			return apperr.Conflict("order number %s already issued", o.Number)
		}
	}
	st.nextOrder++
	o.ID = st.nextOrder
	o.CreatedAt = r.store.now()
	o.UpdatedAt = o.CreatedAt
	stored := *o
	stored.Details = nil
	st.orders[o.ID] = stored
	return nil
}

func (r *repo) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	st, done := r.view()
	defer done()

	return st.order(id)
}

func (r *repo) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetOrder(ctx, id)
}

func (st *state) order(id int64) (*models.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %d", id)
	}
	o.Details = st.detailsOf(id)
	return &o, nil
}

func (st *state) detailsOf(orderID int64) []models.OrderDetail {
	out := []models.OrderDetail{}
	for _, d := range st.details {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *repo) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]models.Order, error) {
	st, done := r.view()
	defer done()

	out := []models.Order{}
	for id, o := range st.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.TableID != nil && (o.TableID == nil || *o.TableID != *filter.TableID) {
			continue
		}
		o.Details = st.detailsOf(id)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) UpdateOrderStatus(ctx context.Context, id int64, from, to models.OrderStatus) error {
	st, done := r.view()
	defer done()

	o, ok := st.orders[id]
	if !ok {
		return apperr.NotFound("order %d", id)
	}
	if o.Status != from {
		return apperr.StaleState("order %d is %s, expected %s", id, o.Status, from)
	}
	o.Status = to
	o.UpdatedAt = r.store.now()
	st.orders[id] = o
	return nil
}

func (r *repo) AppendOrderHistory(ctx context.Context, orderID int64, entry models.OrderStatusHistory) error {
	st, done := r.view()
	defer done()

	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = r.store.now()
	}
	st.history[orderID] = append(st.history[orderID], entry)
	return nil
}

func (r *repo) ListOrderHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	st, done := r.view()
	defer done()

	if _, ok := st.orders[orderID]; !ok {
		return nil, apperr.NotFound("order %d", orderID)
	}
	return append([]models.OrderStatusHistory{}, st.history[orderID]...), nil
}

func (r *repo) AddDetail(ctx context.Context, d *models.OrderDetail) error {
	st, done := r.view()
	defer done()

	if _, ok := st.orders[d.OrderID]; !ok {
		return apperr.NotFound("order %d", d.OrderID)
	}
	st.nextDetail++
	d.ID = st.nextDetail
	d.UpdatedAt = r.store.now()
	st.details[d.ID] = *d
	return nil
}

func (r *repo) UpdateDetail(ctx context.Context, d *models.OrderDetail, prevStatus models.LineStatus, prevQuantity int) error {
	st, done := r.view()
	defer done()

	cur, ok := st.details[d.ID]
	if !ok || cur.OrderID != d.OrderID {
		return apperr.NotFound("order line %d", d.ID)
	}
	if cur.Status != prevStatus || cur.Quantity != prevQuantity {
		return apperr.StaleState("order line %d changed since it was read", d.ID)
	}
	d.UpdatedAt = r.store.now()
	st.details[d.ID] = *d
	return nil
}

func (r *repo) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	st, done := r.view()
	defer done()

	for _, existing := range st.invoices {
		if existing.OrderID == inv.OrderID && existing.PaymentStatus != models.PaymentCancelled {
			return apperr.Conflict("order %d already has invoice %d", inv.OrderID, existing.ID)
		}
	}
	st.nextInvoice++
	inv.ID = st.nextInvoice
	inv.CreatedAt = r.store.now()
	st.invoices[inv.ID] = *inv
	return nil
}

func (r *repo) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	st, done := r.view()
	defer done()

	inv, ok := st.invoices[id]
	if !ok {
		return nil, apperr.NotFound("invoice %d", id)
	}
	return &inv, nil
}

func (r *repo) GetActiveInvoiceByOrder(ctx context.Context, orderID int64) (*models.Invoice, error) {
	st, done := r.view()
	defer done()

	for _, inv := range st.invoices {
		if inv.OrderID == orderID && inv.PaymentStatus != models.PaymentCancelled {
			return &inv, nil
		}
	}
	return nil, apperr.NotFound("invoice for order %d", orderID)
}

func (r *repo) UpdateInvoice(ctx context.Context, inv *models.Invoice, prevStatus models.PaymentStatus) error {
	st, done := r.view()
	defer done()

	cur, ok := st.invoices[inv.ID]
	if !ok {
		return apperr.NotFound("invoice %d", inv.ID)
	}
	if cur.PaymentStatus != prevStatus {
		return apperr.StaleState("invoice %d is %s, expected %s", inv.ID, cur.PaymentStatus, prevStatus)
	}
	st.invoices[inv.ID] = *inv
	return nil
}

func (r *repo) CreatePromotion(ctx context.Context, p *models.Promotion) error {
	st, done := r.view()
	defer done()

	for _, existing := range st.promotions {
		if strings.EqualFold(existing.Code, p.Code) {
			return apperr.Conflict("promotion code %s already exists", p.Code)
		}
	}
	st.nextPromotion++
	p.ID = st.nextPromotion
	p.CreatedAt = r.store.now()
	st.promotions[p.ID] = *p
	return nil
}

func (r *repo) GetPromotion(ctx context.Context, id int64) (*models.Promotion, error) {
	st, done := r.view()
	defer done()

	p, ok := st.promotions[id]
	if !ok {
		return nil, apperr.NotFound("promotion %d", id)
	}
	return &p, nil
}

func (r *repo) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	st, done := r.view()
	defer done()

	for _, p := range st.promotions {
		if strings.EqualFold(p.Code, code) {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("promotion %s", code)
}

func (r *repo) ListPromotions(ctx context.Context) ([]models.Promotion, error) {
	st, done := r.view()
	defer done()

	out := make([]models.Promotion, 0, len(st.promotions))
	for _, p := range st.promotions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) IncrementPromotionUses(ctx context.Context, id int64) error {
	st, done := r.view()
	defer done()

	p, ok := st.promotions[id]
	if !ok {
		return apperr.NotFound("promotion %d", id)
	}
	if p.MaxUses != nil && p.CurrentUses >= *p.MaxUses {
		return apperr.Conflict("promotion %s has no uses left", p.Code)
	}
	p.CurrentUses++
	st.promotions[id] = p
	return nil
}

func (r *repo) PointsBalance(ctx context.Context, customerID int64) (int64, error) {
	st, done := r.view()
	defer done()

	return st.balance(customerID), nil
}

func (st *state) balance(customerID int64) int64 {
	var total int64
	for _, e := range st.points {
		if e.CustomerID == customerID {
			total += e.Delta
		}
	}
	return total
}

func (r *repo) AddPoints(ctx context.Context, entry models.PointsTransaction) error {
	st, done := r.view()
	defer done()

	if entry.Delta < 0 {
		if bal := st.balance(entry.CustomerID); bal+entry.Delta < 0 {
			return apperr.InsufficientPoints("customer %d has %d points, needs %d", entry.CustomerID, bal, -entry.Delta)
		}
	}
	st.nextPoints++
	entry.ID = st.nextPoints
	entry.CreatedAt = r.store.now()
	st.points = append(st.points, entry)
	return nil
}
