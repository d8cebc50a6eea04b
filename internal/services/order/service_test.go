package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/messaging"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/storage"
	"restaurant-floor/internal/storage/memory"
)

type fixture struct {
	svc    *Service
	store  *memory.Store
	events *messaging.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	events := &messaging.Recorder{}
	svc := NewService(store, events, logger.Discard())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, store: store, events: events}
}

func (f *fixture) freeTable(t *testing.T, number int) int64 {
	t.Helper()
	tbl := &models.Table{Number: number, Capacity: 4, LocationID: 1, Status: models.TableFree}
	require.NoError(t, f.store.CreateTable(context.Background(), tbl))
	return tbl.ID
}

func (f *fixture) dineIn(t *testing.T, tableID int64) *models.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), &models.CreateOrderRequest{
		OrderType: "dine_in",
		TableID:   &tableID,
		StaffID:   7,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) line(t *testing.T, orderID int64, qty int, price int64) *models.OrderDetail {
	t.Helper()
	d, err := f.svc.AddLine(context.Background(), orderID, &models.AddDetailRequest{DishID: 1, Quantity: qty, UnitPrice: price})
	require.NoError(t, err)
	return d
}

func statusReq(s string) *models.UpdateLineStatusRequest {
	return &models.UpdateLineStatusRequest{Status: s}
}

func TestCreateOrderDineInOccupiesTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tableID := f.freeTable(t, 1)

	o := f.dineIn(t, tableID)
	assert.Equal(t, "ORD_20240301_001", o.Number)
	assert.Equal(t, models.OrderPending, o.Status)

	tbl, err := f.store.GetTable(ctx, tableID)
	require.NoError(t, err)
	assert.Equal(t, models.TableOccupied, tbl.Status)
	require.NotNil(t, tbl.ActiveOrderID)
	assert.Equal(t, o.ID, *tbl.ActiveOrderID)

	assert.Equal(t, []string{models.EventOrderCreated, models.EventTableStatusChanged}, f.events.Types())

	_, err = f.svc.CreateOrder(ctx, &models.CreateOrderRequest{OrderType: "dine_in", TableID: &tableID, StaffID: 7})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateOrderTakeaway(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.CreateOrder(context.Background(), &models.CreateOrderRequest{OrderType: "takeaway", StaffID: 3})
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), &models.CreateOrderRequest{OrderType: "takeaway", StaffID: 3})
	require.NoError(t, err)

	assert.Nil(t, first.TableID)
	assert.Equal(t, "ORD_20240301_001", first.Number)
	assert.Equal(t, "ORD_20240301_002", second.Number)
}

func TestCreateOrderRejectsUnavailableTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tableID := f.freeTable(t, 1)

	tbl, err := f.store.GetTable(ctx, tableID)
	require.NoError(t, err)
	tbl.Status = models.TableDirty
	require.NoError(t, f.store.UpdateTable(ctx, tbl))

	_, err = f.svc.CreateOrder(ctx, &models.CreateOrderRequest{OrderType: "dine_in", TableID: &tableID, StaffID: 7})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	orders, err := f.svc.ListOrders(ctx, storage.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestConcurrentCreateOrderSameTable(t *testing.T) {
	f := newFixture(t)
	tableID := f.freeTable(t, 1)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateOrder(context.Background(), &models.CreateOrderRequest{
				OrderType: "dine_in",
				TableID:   &tableID,
				StaffID:   int64(i + 1),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestAddLineGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.dineIn(t, f.freeTable(t, 1))

	_, err := f.svc.AddLine(ctx, o.ID, &models.AddDetailRequest{DishID: 1, Quantity: 0, UnitPrice: 100})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.AddLine(ctx, 999, &models.AddDetailRequest{DishID: 1, Quantity: 1, UnitPrice: 100})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.CancelOrder(ctx, o.ID, nil, nil)
	require.NoError(t, err)

	_, err = f.svc.AddLine(ctx, o.ID, &models.AddDetailRequest{DishID: 1, Quantity: 1, UnitPrice: 100})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestUpdateLineQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.dineIn(t, f.freeTable(t, 1))
	d := f.line(t, o.ID, 2, 45000)
	assert.Equal(t, int64(90000), d.LineTotal())

	for _, qty := range []int{5, 1, 3} {
		got, err := f.svc.UpdateLineQuantity(ctx, o.ID, d.ID, &models.UpdateQuantityRequest{Quantity: qty})
		require.NoError(t, err)
		assert.Equal(t, int64(qty)*45000, got.LineTotal())

		order, err := f.svc.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(qty)*45000, order.Subtotal())
	}

	stale := 2
	_, err := f.svc.UpdateLineQuantity(ctx, o.ID, d.ID, &models.UpdateQuantityRequest{Quantity: 4, ExpectedQuantity: &stale})
	assert.ErrorIs(t, err, apperr.ErrStaleState)

	_, err = f.svc.UpdateLineQuantity(ctx, o.ID, d.ID, &models.UpdateQuantityRequest{Quantity: models.MaxLineQuantity + 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.AddLine(ctx, o.ID, &models.AddDetailRequest{DishID: 1, Quantity: models.MaxLineQuantity + 1, UnitPrice: 100})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := f.svc.UpdateLineQuantity(ctx, o.ID, d.ID, &models.UpdateQuantityRequest{Quantity: 0})
	require.NoError(t, err)
	assert.Equal(t, models.LineCancelled, got.Status)
	assert.Equal(t, 3, got.Quantity)

	order, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, order.Details, 1)
	assert.Equal(t, int64(0), order.Subtotal())

	_, err = f.svc.UpdateLineQuantity(ctx, o.ID, d.ID, &models.UpdateQuantityRequest{Quantity: 2})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestUpdateLineStatusMovesForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.dineIn(t, f.freeTable(t, 1))
	d := f.line(t, o.ID, 1, 1000)
	other := f.line(t, o.ID, 1, 1000)

	got, err := f.svc.UpdateLineStatus(ctx, o.ID, d.ID, statusReq("preparing"))
	require.NoError(t, err)
	assert.Equal(t, models.LinePreparing, got.Status)

	order, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPreparing, order.Status)

	_, err = f.svc.UpdateLineStatus(ctx, o.ID, d.ID, statusReq("pending"))
	assert.ErrorIs(t, err, apperr.ErrCannotRegress)

	_, err = f.svc.UpdateLineStatus(ctx, o.ID, d.ID, statusReq("preparing"))
	require.NoError(t, err)

	_, err = f.svc.UpdateLineStatus(ctx, o.ID, other.ID, statusReq("served"))
	require.NoError(t, err)
	_, err = f.svc.UpdateLineStatus(ctx, o.ID, other.ID, statusReq("cancelled"))
	assert.ErrorIs(t, err, apperr.ErrCannotRegress)

	expected := "pending"
	_, err = f.svc.UpdateLineStatus(ctx, o.ID, d.ID, &models.UpdateLineStatusRequest{Status: "served", ExpectedStatus: &expected})
	assert.ErrorIs(t, err, apperr.ErrStaleState)

	_, err = f.svc.UpdateLineStatus(ctx, o.ID, 999, statusReq("served"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateLineNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.dineIn(t, f.freeTable(t, 1))
	d := f.line(t, o.ID, 1, 1000)

	notes := "no onions"
	got, err := f.svc.UpdateLineNotes(ctx, o.ID, d.ID, &models.UpdateNotesRequest{Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, got.SpecialInstructions)
	assert.Equal(t, notes, *got.SpecialInstructions)

	_, err = f.svc.CancelLine(ctx, o.ID, d.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateLineNotes(ctx, o.ID, d.ID, &models.UpdateNotesRequest{Notes: &notes})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestMarkOrderServed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.dineIn(t, f.freeTable(t, 1))
	a := f.line(t, o.ID, 1, 1000)
	b := f.line(t, o.ID, 1, 1000)
	c := f.line(t, o.ID, 1, 1000)

	_, err := f.svc.UpdateLineStatus(ctx, o.ID, a.ID, statusReq("served"))
	require.NoError(t, err)

	_, err = f.svc.MarkOrderServed(ctx, o.ID, nil)
	require.ErrorIs(t, err, apperr.ErrIncompleteOrder)
	assert.Equal(t, []int64{b.ID, c.ID}, apperr.LineIDs(err))

	order, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)

	_, err = f.svc.CancelLine(ctx, o.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateLineStatus(ctx, o.ID, c.ID, statusReq("served"))
	require.NoError(t, err)

	staff := int64(7)
	order, err = f.svc.UpdateOrderStatus(ctx, o.ID, &models.UpdateOrderStatusRequest{Status: "served", StaffID: &staff})
	require.NoError(t, err)
	assert.Equal(t, models.OrderServed, order.Status)

	_, err = f.svc.CancelOrder(ctx, o.ID, nil, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	history, err := f.svc.History(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.OrderPending, history[0].Status)
	assert.Equal(t, models.OrderServed, history[1].Status)
}

func TestCancelOrderReleasesTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tableID := f.freeTable(t, 1)
	o := f.dineIn(t, tableID)
	d := f.line(t, o.ID, 2, 1000)

	reason := "customer left"
	order, err := f.svc.UpdateOrderStatus(ctx, o.ID, &models.UpdateOrderStatusRequest{Status: "cancelled", Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, order.Status)

	order, err = f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	line, ok := order.Detail(d.ID)
	require.True(t, ok)
	assert.Equal(t, models.LineCancelled, line.Status)

	tbl, err := f.store.GetTable(ctx, tableID)
	require.NoError(t, err)
	assert.Equal(t, models.TableDirty, tbl.Status)
	assert.Nil(t, tbl.ActiveOrderID)

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, &models.UpdateOrderStatusRequest{Status: "preparing"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}
