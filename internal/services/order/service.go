package order

import (
	"context"
	"time"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/messaging"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/services/table"
	"restaurant-floor/internal/storage"
)

// Service is the order ledger. Every mutation locks the order row for the
// length of its transaction; line writes are additionally conditioned on
// the line state that was read.
type Service struct {
	store  storage.Store
	events messaging.EventPublisher
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a new order service
func NewService(store storage.Store, events messaging.EventPublisher, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		events: events,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder opens an order. Dine-in orders take the table in the same
// transaction, so two waiters cannot both seat the same free table.
func (s *Service) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	orderType, err := req.Validate()
	if err != nil {
		return nil, err
	}

	var order *models.Order
	var tbl *models.Table
	var tableFrom models.TableStatus

	err = s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		if orderType == models.DineIn {
			t, err := repo.LockTable(ctx, *req.TableID)
			if err != nil {
				return err
			}
			tbl, tableFrom = t, t.Status
		}

		now := s.now()
		seq, err := repo.NextOrderSequence(ctx, now)
		if err != nil {
			return err
		}

		order = &models.Order{
			Number:     models.GenerateOrderNumber(now, seq),
			Type:       orderType,
			TableID:    req.TableID,
			CustomerID: req.CustomerID,
			StaffID:    req.StaffID,
			Status:     models.OrderPending,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}

		if tbl != nil {
			if err := table.Occupy(tbl, order.ID); err != nil {
				return err
			}
			if err := repo.UpdateTable(ctx, tbl); err != nil {
				return err
			}
		}

		return repo.AppendOrderHistory(ctx, order.ID, models.OrderStatusHistory{
			Status:    models.OrderPending,
			ChangedBy: &req.StaffID,
			Notes:     note("order created"),
		})
	})
	if err != nil {
		return nil, err
	}
	order.Details = []models.OrderDetail{}

	s.logger.Info("order_created", "Order created", logger.RequestID(ctx), map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.Number,
		"order_type":   order.Type,
	})

	events := []*models.FloorEvent{models.NewOrderEvent(models.EventOrderCreated, order, "", &req.StaffID)}
	if tbl != nil && tableFrom != tbl.Status {
		events = append(events, models.NewTableEvent(tbl, tableFrom, &req.StaffID))
	}
	s.publish(ctx, events...)
	return order, nil
}

// AddLine appends a pending line to an open order
func (s *Service) AddLine(ctx context.Context, orderID int64, req *models.AddDetailRequest) (*models.OrderDetail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var order *models.Order
	line := &models.OrderDetail{
		OrderID:             orderID,
		DishID:              req.DishID,
		Quantity:            req.Quantity,
		UnitPrice:           req.UnitPrice,
		SpecialInstructions: req.Notes,
		Status:              models.LinePending,
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		o, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status.Closed() {
			return apperr.InvalidTransition("order %s is %s and takes no more lines", o.Number, o.Status)
		}
		if o.Type == models.DineIn {
			t, err := repo.GetTable(ctx, *o.TableID)
			if err != nil {
				return err
			}
			if t.Status != models.TableOccupied || t.ActiveOrderID == nil || *t.ActiveOrderID != o.ID {
				return apperr.Conflict("table %d is not occupied by order %s", t.Number, o.Number)
			}
		}
		order = o
		return repo.AddDetail(ctx, line)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.NewLineEvent(order, line, ""))
	return line, nil
}

// lineChange computes the next state of a line. It reports false when
// the request leaves the line as it is.
type lineChange func(o *models.Order, next *models.OrderDetail) (bool, error)

// mutateLine runs change against the current line under the order lock and
// writes it conditioned on the state it read. exp is what the caller last
// observed; a mismatch is StaleState.
func (s *Service) mutateLine(ctx context.Context, orderID, lineID int64, exp models.LineExpectation, change lineChange) (*models.OrderDetail, error) {
	var order *models.Order
	var prev, next models.OrderDetail
	var changed, orderAdvanced bool

	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		o, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		cur, ok := o.Detail(lineID)
		if !ok {
			return apperr.NotFound("line %d on order %d", lineID, orderID)
		}
		if exp.Status != nil && *exp.Status != cur.Status {
			return apperr.StaleState("line %d is %s, expected %s", lineID, cur.Status, *exp.Status)
		}
		if exp.Quantity != nil && *exp.Quantity != cur.Quantity {
			return apperr.StaleState("line %d has quantity %d, expected %d", lineID, cur.Quantity, *exp.Quantity)
		}

		order, prev, next = o, *cur, *cur
		if changed, err = change(o, &next); err != nil || !changed {
			return err
		}
		if err := repo.UpdateDetail(ctx, &next, prev.Status, prev.Quantity); err != nil {
			return err
		}

		// The first line to start cooking moves the order along with it.
		if next.Status == models.LinePreparing && o.Status == models.OrderPending {
			if err := repo.UpdateOrderStatus(ctx, o.ID, models.OrderPending, models.OrderPreparing); err != nil {
				return err
			}
			if err := repo.AppendOrderHistory(ctx, o.ID, models.OrderStatusHistory{
				Status: models.OrderPreparing,
				Notes:  note("first line in preparation"),
			}); err != nil {
				return err
			}
			o.Status = models.OrderPreparing
			orderAdvanced = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &prev, nil
	}

	events := []*models.FloorEvent{models.NewLineEvent(order, &next, prev.Status)}
	if orderAdvanced {
		events = append(events, models.NewOrderEvent(models.EventOrderStatusChanged, order, models.OrderPending, nil))
	}
	s.publish(ctx, events...)
	return &next, nil
}

// UpdateLineQuantity sets a line's quantity. A quantity of zero or less
// cancels the line instead; the quantity it had is kept for the record.
func (s *Service) UpdateLineQuantity(ctx context.Context, orderID, lineID int64, req *models.UpdateQuantityRequest) (*models.OrderDetail, error) {
	exp, err := req.Expectation()
	if err != nil {
		return nil, err
	}
	if req.Quantity > models.MaxLineQuantity {
		return nil, apperr.Validation("quantity must not exceed %d", models.MaxLineQuantity)
	}

	return s.mutateLine(ctx, orderID, lineID, exp, func(o *models.Order, next *models.OrderDetail) (bool, error) {
		if next.Status.Terminal() {
			return false, apperr.InvalidTransition("line %d is %s and its quantity is fixed", next.ID, next.Status)
		}
		if req.Quantity <= 0 {
			next.Status = models.LineCancelled
			return true, nil
		}
		if req.Quantity == next.Quantity {
			return false, nil
		}
		next.Quantity = req.Quantity
		return true, nil
	})
}

// UpdateLineNotes replaces a line's special instructions
func (s *Service) UpdateLineNotes(ctx context.Context, orderID, lineID int64, req *models.UpdateNotesRequest) (*models.OrderDetail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.mutateLine(ctx, orderID, lineID, models.LineExpectation{}, func(o *models.Order, next *models.OrderDetail) (bool, error) {
		if next.Status.Terminal() {
			return false, apperr.InvalidTransition("line %d is %s and its notes are fixed", next.ID, next.Status)
		}
		next.SpecialInstructions = req.Notes
		return true, nil
	})
}

// UpdateLineStatus moves a line forward. Setting the status it already has
// changes nothing.
func (s *Service) UpdateLineStatus(ctx context.Context, orderID, lineID int64, req *models.UpdateLineStatusRequest) (*models.OrderDetail, error) {
	status, exp, err := req.Validate()
	if err != nil {
		return nil, err
	}
	return s.setLineStatus(ctx, orderID, lineID, status, exp)
}

// CancelLine cancels a line that has not been served
func (s *Service) CancelLine(ctx context.Context, orderID, lineID int64) (*models.OrderDetail, error) {
	return s.setLineStatus(ctx, orderID, lineID, models.LineCancelled, models.LineExpectation{})
}

func (s *Service) setLineStatus(ctx context.Context, orderID, lineID int64, status models.LineStatus, exp models.LineExpectation) (*models.OrderDetail, error) {
	return s.mutateLine(ctx, orderID, lineID, exp, func(o *models.Order, next *models.OrderDetail) (bool, error) {
		if next.Status == status {
			return false, nil
		}
		if !next.Status.CanAdvanceTo(status) {
			return false, apperr.CannotRegress("line %d cannot go from %s to %s", next.ID, next.Status, status)
		}
		next.Status = status
		return true, nil
	})
}

// UpdateOrderStatus handles the explicit order transitions: served and
// cancelled. The others follow from line changes.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	status, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if status == models.OrderServed {
		return s.MarkOrderServed(ctx, orderID, req.StaffID)
	}
	return s.CancelOrder(ctx, orderID, req.StaffID, req.Reason)
}

// MarkOrderServed closes an order once every non-cancelled line is served.
// Otherwise it fails with IncompleteOrder naming the lines still open.
func (s *Service) MarkOrderServed(ctx context.Context, orderID int64, staffID *int64) (*models.Order, error) {
	var order *models.Order
	var from models.OrderStatus

	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		o, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order, from = o, o.Status

		switch o.Status {
		case models.OrderServed:
			return nil
		case models.OrderCancelled:
			return apperr.InvalidTransition("order %s is cancelled", o.Number)
		}
		if open := o.UnservedLineIDs(); len(open) > 0 {
			return apperr.IncompleteOrder(o.ID, open)
		}

		if err := repo.UpdateOrderStatus(ctx, o.ID, o.Status, models.OrderServed); err != nil {
			return err
		}
		o.Status = models.OrderServed
		return repo.AppendOrderHistory(ctx, o.ID, models.OrderStatusHistory{
			Status:    models.OrderServed,
			ChangedBy: staffID,
			Notes:     note("all lines served"),
		})
	})
	if err != nil {
		return nil, err
	}

	if from != order.Status {
		s.logger.Info("order_served", "Order served", logger.RequestID(ctx), map[string]interface{}{
			"order_number": order.Number,
		})
		s.publish(ctx, models.NewOrderEvent(models.EventOrderStatusChanged, order, from, staffID))
	}
	return order, nil
}

// CancelOrder cancels an unserved order and its open lines. A dine-in
// table is released for cleaning.
func (s *Service) CancelOrder(ctx context.Context, orderID int64, staffID *int64, reason *string) (*models.Order, error) {
	var order *models.Order
	var from models.OrderStatus
	var tbl *models.Table

	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		o, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status.Closed() {
			return apperr.InvalidTransition("order %s is already %s", o.Number, o.Status)
		}
		order, from = o, o.Status

		for i := range o.Details {
			d := &o.Details[i]
			if d.Status.Terminal() {
				continue
			}
			prev := d.Status
			d.Status = models.LineCancelled
			if err := repo.UpdateDetail(ctx, d, prev, d.Quantity); err != nil {
				return err
			}
		}

		if err := repo.UpdateOrderStatus(ctx, o.ID, o.Status, models.OrderCancelled); err != nil {
			return err
		}
		o.Status = models.OrderCancelled
		if reason == nil {
			reason = note("order cancelled")
		}
		if err := repo.AppendOrderHistory(ctx, o.ID, models.OrderStatusHistory{
			Status:    models.OrderCancelled,
			ChangedBy: staffID,
			Notes:     reason,
		}); err != nil {
			return err
		}

		if o.Type != models.DineIn {
			return nil
		}
		t, err := repo.LockTable(ctx, *o.TableID)
		if err != nil {
			return err
		}
		if t.ActiveOrderID == nil || *t.ActiveOrderID != o.ID {
			return nil
		}
		if err := table.Release(t, o.ID); err != nil {
			return err
		}
		tbl = t
		return repo.UpdateTable(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order_cancelled", "Order cancelled", logger.RequestID(ctx), map[string]interface{}{
		"order_number": order.Number,
	})
	events := []*models.FloorEvent{models.NewOrderEvent(models.EventOrderStatusChanged, order, from, staffID)}
	if tbl != nil {
		events = append(events, models.NewTableEvent(tbl, models.TableOccupied, staffID))
	}
	s.publish(ctx, events...)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]models.Order, error) {
	return s.store.ListOrders(ctx, filter)
}

// History returns the order's status log, oldest first
func (s *Service) History(ctx context.Context, id int64) ([]models.OrderStatusHistory, error) {
	return s.store.ListOrderHistory(ctx, id)
}

func (s *Service) publish(ctx context.Context, events ...*models.FloorEvent) {
	for _, e := range events {
		if err := s.events.PublishEvent(ctx, e); err != nil {
			s.logger.Error("event_publish_failed", "Failed to publish order event", logger.RequestID(ctx), err, map[string]interface{}{
				"event": e.Type,
			})
		}
	}
}

func note(s string) *string { return &s }
