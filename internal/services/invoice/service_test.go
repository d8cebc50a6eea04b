package invoice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/discount"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/messaging"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/services/order"
	"restaurant-floor/internal/storage"
	"restaurant-floor/internal/storage/memory"
)

type fixture struct {
	svc    *Service
	orders *order.Service
	store  *memory.Store
	events *messaging.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	events := &messaging.Recorder{}
	log := logger.Discard()
	return &fixture{
		svc:    NewService(store, events, log, decimal.RequireFromString("0.10")),
		orders: order.NewService(store, events, log),
		store:  store,
		events: events,
	}
}

// servedOrder seats a dine-in order at a new table with one line per
// price and serves everything.
func (f *fixture) servedOrder(t *testing.T, tableNumber int, customerID *int64, prices ...int64) *models.Order {
	t.Helper()
	ctx := context.Background()

	tbl := &models.Table{Number: tableNumber, Capacity: 4, LocationID: 1, Status: models.TableFree}
	require.NoError(t, f.store.CreateTable(ctx, tbl))

	o, err := f.orders.CreateOrder(ctx, &models.CreateOrderRequest{
		OrderType:  "dine_in",
		TableID:    &tbl.ID,
		CustomerID: customerID,
		StaffID:    7,
	})
	require.NoError(t, err)

	for _, price := range prices {
		d, err := f.orders.AddLine(ctx, o.ID, &models.AddDetailRequest{DishID: 1, Quantity: 1, UnitPrice: price})
		require.NoError(t, err)
		_, err = f.orders.UpdateLineStatus(ctx, o.ID, d.ID, &models.UpdateLineStatusRequest{Status: "served"})
		require.NoError(t, err)
	}

	o, err = f.orders.MarkOrderServed(ctx, o.ID, nil)
	require.NoError(t, err)
	return o
}

func (f *fixture) promotion(t *testing.T, req models.CreatePromotionRequest) *models.Promotion {
	t.Helper()
	p, err := f.svc.CreatePromotion(context.Background(), &req)
	require.NoError(t, err)
	return p
}

func (f *fixture) grant(t *testing.T, customerID, points int64) {
	t.Helper()
	_, err := f.svc.GrantPoints(context.Background(), customerID, &models.GrantPointsRequest{Points: points})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, customerID int64) int64 {
	t.Helper()
	b, err := f.svc.PointsBalance(context.Background(), customerID)
	require.NoError(t, err)
	return b.Balance
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string  { return &v }

func TestSettleCashEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := int64(42)
	o := f.servedOrder(t, 1, &customer, 50000, 50000)

	inv, err := f.svc.Settle(ctx, o.ID, Payment{Method: models.PayCash, AmountReceived: int64Ptr(110000)}, discount.CashierOpen{})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentPaid, inv.PaymentStatus)
	assert.Equal(t, int64(100000), inv.Subtotal)
	assert.Equal(t, int64(10000), inv.Tax)
	assert.Equal(t, int64(0), inv.DiscountAmount)
	assert.Equal(t, int64(110000), inv.TotalAmount)
	assert.Equal(t, models.SourceNone, inv.DiscountSource)
	assert.Equal(t, int64(110), inv.LoyaltyPointsEarned)
	require.NotNil(t, inv.ChangeDue)
	assert.Equal(t, int64(0), *inv.ChangeDue)
	assert.NotNil(t, inv.PaidAt)

	tbl, err := f.store.GetTable(ctx, *o.TableID)
	require.NoError(t, err)
	assert.Equal(t, models.TableDirty, tbl.Status)
	assert.Nil(t, tbl.ActiveOrderID)

	got, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderServed, got.Status)

	assert.Equal(t, int64(110), f.balance(t, customer))
	assert.Subset(t, f.events.Types(), []string{models.EventInvoiceCreated, models.EventInvoicePaid})
}

func TestPayCashAwaitsHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.servedOrder(t, 1, nil, 30000)

	inv, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(33000), inv.TotalAmount)

	inv, err = f.svc.Pay(ctx, inv.ID, &models.PayInvoiceRequest{PaymentMethod: "cash"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, inv.PaymentStatus)

	tbl, err := f.store.GetTable(ctx, *o.TableID)
	require.NoError(t, err)
	assert.Equal(t, models.TableOccupied, tbl.Status)

	_, err = f.svc.ConfirmCash(ctx, inv.ID, &models.ConfirmCashRequest{AmountReceived: 20000})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	inv, err = f.svc.ConfirmCash(ctx, inv.ID, &models.ConfirmCashRequest{AmountReceived: 50000, StaffID: int64Ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, inv.PaymentStatus)
	assert.Equal(t, int64(17000), *inv.ChangeDue)
	assert.Equal(t, int64(3), *inv.ConfirmedBy)
	assert.Equal(t, int64(0), inv.LoyaltyPointsEarned)

	_, err = f.svc.ConfirmCash(ctx, inv.ID, &models.ConfirmCashRequest{AmountReceived: 50000})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCashShortfallWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.servedOrder(t, 1, nil, 50000, 50000)

	_, err := f.svc.Settle(ctx, o.ID, Payment{Method: models.PayCash, AmountReceived: int64Ptr(100000)}, discount.CashierOpen{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.store.GetActiveInvoiceByOrder(ctx, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSettleTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.servedOrder(t, 1, nil, 50000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Settle(ctx, o.ID, Payment{Method: models.PayCard}, discount.CashierOpen{})
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}
	}
	assert.Equal(t, 1, failed)

	_, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateInvoiceRequiresServedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.orders.CreateOrder(ctx, &models.CreateOrderRequest{OrderType: "takeaway", StaffID: 1})
	require.NoError(t, err)
	d, err := f.orders.AddLine(ctx, o.ID, &models.AddDetailRequest{DishID: 1, Quantity: 1, UnitPrice: 100})
	require.NoError(t, err)

	_, err = f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.ErrorIs(t, err, apperr.ErrIncompleteOrder)
	assert.Equal(t, []int64{d.ID}, apperr.LineIDs(err))

	_, err = f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: 999})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCustomerFixedPointsAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := int64(42)
	f.grant(t, customer, 1500)
	promo := f.promotion(t, models.CreatePromotionRequest{Code: "SPRING", Name: "Spring", Type: "percentage", DiscountValue: decimal.NewFromInt(15)})
	o := f.servedOrder(t, 1, &customer, 50000, 50000)

	inv, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.NoError(t, err)

	_, err = f.svc.ApplyCustomerDiscount(ctx, inv.ID, &models.CustomerDiscountRequest{CustomerID: customer, Points: int64Ptr(500)})
	assert.ErrorIs(t, err, apperr.ErrBelowMinimum)
	_, err = f.svc.ApplyCustomerDiscount(ctx, inv.ID, &models.CustomerDiscountRequest{CustomerID: customer, Points: int64Ptr(2000)})
	assert.ErrorIs(t, err, apperr.ErrInsufficientPoints)

	inv, err = f.svc.ApplyCustomerDiscount(ctx, inv.ID, &models.CustomerDiscountRequest{CustomerID: customer, Points: int64Ptr(1000)})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inv.DiscountAmount)
	assert.Equal(t, models.SourcePoints, inv.DiscountSource)

	candidates, err := f.svc.Candidates(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	_, err = f.svc.ApplyCustomerDiscount(ctx, inv.ID, &models.CustomerDiscountRequest{CustomerID: customer, PromotionCode: strPtr("spring")})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Pay(ctx, inv.ID, &models.PayInvoiceRequest{PaymentMethod: "card", PromotionID: &promo.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	inv, err = f.svc.Pay(ctx, inv.ID, &models.PayInvoiceRequest{PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, inv.PaymentStatus)
	assert.Equal(t, int64(109000), inv.TotalAmount)
	assert.Equal(t, int64(1000), *inv.AppliedPointsUsed)
	assert.Equal(t, int64(100), inv.LoyaltyPointsEarned)

	assert.Equal(t, int64(1500-1000+100), f.balance(t, customer))
}

func TestCashierPromotionAndPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := int64(9)
	f.grant(t, customer, 2000)
	promo := f.promotion(t, models.CreatePromotionRequest{Code: "TEN", Name: "Ten", Type: "percentage", DiscountValue: decimal.NewFromInt(15), MaxUses: int64Ptr(1)})
	o := f.servedOrder(t, 1, &customer, 100000)

	inv, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.NoError(t, err)

	inv, err = f.svc.Pay(ctx, inv.ID, &models.PayInvoiceRequest{
		PaymentMethod: "wallet",
		PromotionID:   &promo.ID,
		PointsUsed:    int64Ptr(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(16000), inv.DiscountAmount)
	assert.Equal(t, int64(94000), inv.TotalAmount)
	assert.Equal(t, models.SourcePromotionPoint, inv.DiscountSource)
	assert.Equal(t, promo.ID, *inv.AppliedPromotionID)
	assert.Equal(t, int64(2000-1000+90), f.balance(t, customer))

	stored, err := f.store.GetPromotion(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.CurrentUses)

	// The promotion is used up and no longer offered.
	other := f.servedOrder(t, 2, nil, 100000)
	next, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: other.ID})
	require.NoError(t, err)
	candidates, err := f.svc.Candidates(ctx, next.ID)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	_, err = f.svc.Pay(ctx, next.ID, &models.PayInvoiceRequest{PaymentMethod: "card", PromotionID: &promo.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Pay(ctx, next.ID, &models.PayInvoiceRequest{PaymentMethod: "card", PointsUsed: int64Ptr(1000)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCandidatesRanked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	small := f.promotion(t, models.CreatePromotionRequest{Code: "FIVE", Name: "Five", Type: "percentage", DiscountValue: decimal.NewFromInt(5)})
	big := f.promotion(t, models.CreatePromotionRequest{Code: "FLAT", Name: "Flat", Type: "fixed_amount", DiscountValue: decimal.NewFromInt(50000)})
	f.promotion(t, models.CreatePromotionRequest{Code: "BIG", Name: "Big spender", Type: "percentage", DiscountValue: decimal.NewFromInt(30), MinimumOrderAmount: int64Ptr(1000000)})
	o := f.servedOrder(t, 1, nil, 600000)

	inv, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.NoError(t, err)

	candidates, err := f.svc.Candidates(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, big.ID, candidates[0].Promotion.ID)
	assert.Equal(t, int64(50000), candidates[0].Discount)
	assert.Equal(t, small.ID, candidates[1].Promotion.ID)
	assert.Equal(t, int64(30000), candidates[1].Discount)
}

func TestCancelInvoiceFreesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.servedOrder(t, 1, nil, 1000)

	inv, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.NoError(t, err)

	inv, err = f.svc.CancelInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, inv.PaymentStatus)

	_, err = f.svc.Pay(ctx, inv.ID, &models.PayInvoiceRequest{PaymentMethod: "card"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	again, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.NoError(t, err)
	assert.NotEqual(t, inv.ID, again.ID)
}

// ledgerFailStore fails the ledger write after the balance has moved
type ledgerFailStore struct {
	storage.Store
	txs int
}

func (s *ledgerFailStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	s.txs++
	return s.Store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		return fn(ctx, ledgerFailRepo{repo})
	})
}

func (s *ledgerFailStore) AddPoints(context.Context, models.PointsTransaction) error {
	return errors.New("points written outside a transaction")
}

type ledgerFailRepo struct {
	storage.Repository
}

func (r ledgerFailRepo) AddPoints(ctx context.Context, entry models.PointsTransaction) error {
	if err := r.Repository.AddPoints(ctx, entry); err != nil {
		return err
	}
	return errors.New("ledger insert failed")
}

func TestGrantPointsIsAtomic(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	store := &ledgerFailStore{Store: base}
	svc := NewService(store, &messaging.Recorder{}, logger.Discard(), decimal.RequireFromString("0.10"))

	_, err := svc.GrantPoints(ctx, 5, &models.GrantPointsRequest{Points: 300})
	require.Error(t, err)
	assert.Equal(t, 1, store.txs)

	balance, err := base.PointsBalance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestCustomerDiscountIgnoresBlankCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := int64(42)
	f.grant(t, customer, 1500)
	o := f.servedOrder(t, 1, &customer, 50000, 50000)

	inv, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.NoError(t, err)

	inv, err = f.svc.ApplyCustomerDiscount(ctx, inv.ID, &models.CustomerDiscountRequest{
		CustomerID:    customer,
		PromotionCode: strPtr("  "),
		Points:        int64Ptr(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourcePoints, inv.DiscountSource)
	assert.Nil(t, inv.CustomerPromotionID)
	assert.Equal(t, int64(1000), *inv.CustomerPointsRequested)
}

func TestPayCustomerFixedAcceptsZeroPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := int64(42)
	f.grant(t, customer, 1500)
	o := f.servedOrder(t, 1, &customer, 50000, 50000)

	inv, err := f.svc.CreateInvoice(ctx, &models.CreateInvoiceRequest{OrderID: o.ID})
	require.NoError(t, err)
	_, err = f.svc.ApplyCustomerDiscount(ctx, inv.ID, &models.CustomerDiscountRequest{CustomerID: customer, Points: int64Ptr(1000)})
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, inv.ID, &models.PayInvoiceRequest{PaymentMethod: "card", PointsUsed: int64Ptr(1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	inv, err = f.svc.Pay(ctx, inv.ID, &models.PayInvoiceRequest{PaymentMethod: "card", PointsUsed: int64Ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, inv.PaymentStatus)
	assert.Equal(t, int64(1000), *inv.AppliedPointsUsed)
}
