// Package invoice settles served orders: pricing, discounts, payment and
// the loyalty and table cascades that follow payment.
package invoice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/discount"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/messaging"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/services/table"
	"restaurant-floor/internal/storage"
)

// Service settles invoices. Invoice mutations lock the owning order row
// first, so they are serialized per order and take the table lock after it.
type Service struct {
	store   storage.Store
	events  messaging.EventPublisher
	logger  *logger.Logger
	taxRate decimal.Decimal
	now     func() time.Time
}

// NewService creates a new invoice service
func NewService(store storage.Store, events messaging.EventPublisher, log *logger.Logger, taxRate decimal.Decimal) *Service {
	return &Service{
		store:   store,
		events:  events,
		logger:  log,
		taxRate: taxRate,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Payment is a cashier's request to take payment
type Payment struct {
	Method         models.PaymentMethod
	AmountReceived *int64
	StaffID        *int64
}

// settlement carries what a committed transaction needs to report
type settlement struct {
	invoice *models.Invoice
	order   *models.Order
	table   *models.Table
	created bool
}

// Tax is floor(rate × subtotal)
func (s *Service) Tax(subtotal int64) int64 {
	return decimal.NewFromInt(subtotal).Mul(s.taxRate).Floor().IntPart()
}

// CreateInvoice prices a served order into a pending invoice
func (s *Service) CreateInvoice(ctx context.Context, req *models.CreateInvoiceRequest) (*models.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var res settlement
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		o, err := lockSettleable(ctx, repo, req.OrderID)
		if err != nil {
			return err
		}
		inv := s.newInvoice(o)
		inv.Notes = req.Notes
		if err := repo.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		res = settlement{invoice: inv, order: o, created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.report(ctx, res)
	return res.invoice, nil
}

// Settle creates and pays the invoice for orderID in one step
func (s *Service) Settle(ctx context.Context, orderID int64, pay Payment, dctx discount.Context) (*models.Invoice, error) {
	if !pay.Method.Valid() {
		return nil, apperr.Validation("payment_method must be one of: cash, card, wallet, transfer")
	}

	var res settlement
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		o, err := lockSettleable(ctx, repo, orderID)
		if err != nil {
			return err
		}
		inv := s.newInvoice(o)
		if fixed, ok := dctx.(discount.CustomerFixed); ok {
			if err := fixChoice(inv, fixed); err != nil {
				return err
			}
		}
		res, err = s.charge(ctx, repo, o, inv, pay, dctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.report(ctx, res)
	return res.invoice, nil
}

// ApplyCustomerDiscount records the customer's own discount choice. Once
// fixed, the cashier can no longer add a promotion or points.
func (s *Service) ApplyCustomerDiscount(ctx context.Context, invoiceID int64, req *models.CustomerDiscountRequest) (*models.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var inv *models.Invoice
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		var err error
		if inv, _, err = lockInvoice(ctx, repo, invoiceID); err != nil {
			return err
		}
		if err := requirePending(inv); err != nil {
			return err
		}
		if inv.CustomerFixed() {
			return apperr.Conflict("invoice %d already carries the customer's discount", inv.ID)
		}
		if inv.CustomerID != nil && *inv.CustomerID != req.CustomerID {
			return apperr.Validation("invoice %d belongs to another customer", inv.ID)
		}
		inv.CustomerID = &req.CustomerID

		var fixed discount.CustomerFixed
		if req.HasPromotionCode() {
			promo, err := repo.GetPromotionByCode(ctx, strings.TrimSpace(*req.PromotionCode))
			if err != nil {
				return err
			}
			fixed = discount.CustomerVoucher(promo)
		} else {
			balance, err := repo.PointsBalance(ctx, req.CustomerID)
			if err != nil {
				return err
			}
			fixed = discount.CustomerPoints(*req.Points, balance)
		}

		r, err := discount.Resolve(inv.Subtotal, inv.Tax, fixed)
		if err != nil {
			return err
		}
		if err := fixChoice(inv, fixed); err != nil {
			return err
		}
		applyResolution(inv, r)
		return repo.UpdateInvoice(ctx, inv, models.PaymentPending)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("customer_discount_applied", "Customer discount fixed", logger.RequestID(ctx), map[string]interface{}{
		"invoice_id":      inv.ID,
		"discount_source": inv.DiscountSource,
		"discount_amount": inv.DiscountAmount,
	})
	return inv, nil
}

// Candidates lists the promotions the cashier may offer, best first. It is
// empty once the customer has fixed their own discount.
func (s *Service) Candidates(ctx context.Context, invoiceID int64) ([]discount.Candidate, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.CustomerFixed() || inv.PaymentStatus != models.PaymentPending {
		return []discount.Candidate{}, nil
	}
	catalog, err := s.store.ListPromotions(ctx)
	if err != nil {
		return nil, err
	}
	return discount.Candidates(inv.Subtotal, inv.Tax, catalog), nil
}

// Pay is the cashier's confirmation. Card, wallet and transfer settle at
// once. Cash settles when the amount received is given and covers the
// total; without it the priced invoice waits for ConfirmCash.
func (s *Service) Pay(ctx context.Context, invoiceID int64, req *models.PayInvoiceRequest) (*models.Invoice, error) {
	method, err := req.Validate()
	if err != nil {
		return nil, err
	}
	pay := Payment{Method: method, AmountReceived: req.AmountReceived, StaffID: req.StaffID}

	var res settlement
	err = s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		inv, o, err := lockInvoice(ctx, repo, invoiceID)
		if err != nil {
			return err
		}
		if err := requirePending(inv); err != nil {
			return err
		}
		dctx, err := settlementContext(ctx, repo, inv, req.PromotionID, req.PointsUsed)
		if err != nil {
			return err
		}
		res, err = s.charge(ctx, repo, o, inv, pay, dctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.report(ctx, res)
	return res.invoice, nil
}

// ConfirmCash records the physical handoff for a cash invoice left pending
// by Pay.
func (s *Service) ConfirmCash(ctx context.Context, invoiceID int64, req *models.ConfirmCashRequest) (*models.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var res settlement
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		inv, o, err := lockInvoice(ctx, repo, invoiceID)
		if err != nil {
			return err
		}
		if err := requirePending(inv); err != nil {
			return err
		}
		if inv.PaymentMethod == nil || *inv.PaymentMethod != models.PayCash {
			return apperr.InvalidTransition("invoice %d is not awaiting cash", inv.ID)
		}
		if req.AmountReceived < inv.TotalAmount {
			return apperr.Validation("amount received %d is less than total %d", req.AmountReceived, inv.TotalAmount)
		}
		t, err := s.markPaid(ctx, repo, o, inv, &req.AmountReceived, req.StaffID)
		if err != nil {
			return err
		}
		res = settlement{invoice: inv, order: o, table: t}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.report(ctx, res)
	return res.invoice, nil
}

// CancelInvoice voids a pending invoice and frees the order for a new one
func (s *Service) CancelInvoice(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		var err error
		if inv, _, err = lockInvoice(ctx, repo, invoiceID); err != nil {
			return err
		}
		if err := requirePending(inv); err != nil {
			return err
		}
		inv.PaymentStatus = models.PaymentCancelled
		return repo.UpdateInvoice(ctx, inv, models.PaymentPending)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice_cancelled", "Invoice cancelled", logger.RequestID(ctx), map[string]interface{}{
		"invoice_id": inv.ID,
		"order_id":   inv.OrderID,
	})
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

// charge prices inv under dctx and either pays it or leaves it pending for
// a cash handoff. Every check runs before the first write.
func (s *Service) charge(ctx context.Context, repo storage.Repository, o *models.Order, inv *models.Invoice, pay Payment, dctx discount.Context) (settlement, error) {
	r, err := discount.Resolve(inv.Subtotal, inv.Tax, dctx)
	if err != nil {
		return settlement{}, err
	}
	if r.PointsUsed > 0 && inv.CustomerID == nil {
		return settlement{}, apperr.Validation("points can only be redeemed on a customer's order")
	}
	applyResolution(inv, r)
	inv.PaymentMethod = &pay.Method

	awaitingCash := pay.Method == models.PayCash && pay.AmountReceived == nil
	if pay.Method == models.PayCash && !awaitingCash && *pay.AmountReceived < inv.TotalAmount {
		return settlement{}, apperr.Validation("amount received %d is less than total %d", *pay.AmountReceived, inv.TotalAmount)
	}

	res := settlement{invoice: inv, order: o, created: inv.ID == 0}
	if res.created {
		if err := repo.CreateInvoice(ctx, inv); err != nil {
			return settlement{}, err
		}
	}
	if awaitingCash {
		if res.created {
			return res, nil
		}
		return res, repo.UpdateInvoice(ctx, inv, models.PaymentPending)
	}

	res.table, err = s.markPaid(ctx, repo, o, inv, pay.AmountReceived, pay.StaffID)
	return res, err
}

// markPaid moves inv to paid and applies the cascades: promotion use,
// points debit and credit, and releasing the table.
func (s *Service) markPaid(ctx context.Context, repo storage.Repository, o *models.Order, inv *models.Invoice, received, staffID *int64) (*models.Table, error) {
	now := s.now()
	inv.PaymentStatus = models.PaymentPaid
	inv.PaidAt = &now
	inv.ConfirmedBy = staffID
	if received != nil {
		change := *received - inv.TotalAmount
		inv.AmountReceived = received
		inv.ChangeDue = &change
	}

	if inv.AppliedPromotionID != nil {
		if err := repo.IncrementPromotionUses(ctx, *inv.AppliedPromotionID); err != nil {
			return nil, err
		}
	}

	if inv.CustomerID != nil {
		if inv.AppliedPointsUsed != nil && *inv.AppliedPointsUsed > 0 {
			if err := repo.AddPoints(ctx, models.PointsTransaction{
				CustomerID: *inv.CustomerID,
				Delta:      -*inv.AppliedPointsUsed,
				Reason:     models.PointsReasonRedeemed,
				InvoiceID:  &inv.ID,
			}); err != nil {
				return nil, err
			}
		}
		inv.LoyaltyPointsEarned = discount.EarnedPoints(inv.TotalAmount)
		if inv.LoyaltyPointsEarned > 0 {
			if err := repo.AddPoints(ctx, models.PointsTransaction{
				CustomerID: *inv.CustomerID,
				Delta:      inv.LoyaltyPointsEarned,
				Reason:     models.PointsReasonEarned,
				InvoiceID:  &inv.ID,
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := repo.UpdateInvoice(ctx, inv, models.PaymentPending); err != nil {
		return nil, err
	}

	if o.Type != models.DineIn {
		return nil, nil
	}
	t, err := repo.LockTable(ctx, *o.TableID)
	if err != nil {
		return nil, err
	}
	if t.ActiveOrderID == nil || *t.ActiveOrderID != o.ID {
		return nil, nil
	}
	if err := table.Release(t, o.ID); err != nil {
		return nil, err
	}
	return t, repo.UpdateTable(ctx, t)
}

func (s *Service) newInvoice(o *models.Order) *models.Invoice {
	subtotal := o.Subtotal()
	tax := s.Tax(subtotal)
	return &models.Invoice{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		Subtotal:       subtotal,
		Tax:            tax,
		TotalAmount:    subtotal + tax,
		DiscountSource: models.SourceNone,
		PaymentStatus:  models.PaymentPending,
	}
}

// report logs and publishes what a committed settlement changed
func (s *Service) report(ctx context.Context, res settlement) {
	inv := res.invoice
	requestID := logger.RequestID(ctx)

	var events []*models.FloorEvent
	if res.created {
		s.logger.Info("invoice_created", "Invoice created", requestID, map[string]interface{}{
			"invoice_id":   inv.ID,
			"order_number": res.order.Number,
			"total_amount": inv.TotalAmount,
		})
		events = append(events, models.NewInvoiceEvent(models.EventInvoiceCreated, inv, res.order.Number))
	}
	if inv.PaymentStatus == models.PaymentPaid {
		s.logger.Info("invoice_paid", "Invoice paid", requestID, map[string]interface{}{
			"invoice_id":      inv.ID,
			"payment_method":  *inv.PaymentMethod,
			"total_amount":    inv.TotalAmount,
			"discount_source": inv.DiscountSource,
			"points_earned":   inv.LoyaltyPointsEarned,
		})
		events = append(events, models.NewInvoiceEvent(models.EventInvoicePaid, inv, res.order.Number))
	}
	if res.table != nil {
		events = append(events, models.NewTableEvent(res.table, models.TableOccupied, inv.ConfirmedBy))
	}

	for _, e := range events {
		if err := s.events.PublishEvent(ctx, e); err != nil {
			s.logger.Error("event_publish_failed", "Failed to publish invoice event", requestID, err, map[string]interface{}{
				"event": e.Type,
			})
		}
	}
}

// lockSettleable locks an order that may receive a new invoice
func lockSettleable(ctx context.Context, repo storage.Repository, orderID int64) (*models.Order, error) {
	o, err := repo.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case models.OrderServed:
	case models.OrderCancelled:
		return nil, apperr.InvalidTransition("order %s is cancelled", o.Number)
	default:
		return nil, apperr.IncompleteOrder(o.ID, o.UnservedLineIDs())
	}

	existing, err := repo.GetActiveInvoiceByOrder(ctx, o.ID)
	switch {
	case err == nil:
		return nil, apperr.Conflict("order %s already has invoice %d", o.Number, existing.ID)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return o, nil
}

// lockInvoice locks the invoice's order, then reads the invoice under it
func lockInvoice(ctx context.Context, repo storage.Repository, invoiceID int64) (*models.Invoice, *models.Order, error) {
	inv, err := repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	o, err := repo.LockOrder(ctx, inv.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if inv, err = repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, nil, err
	}
	return inv, o, nil
}

func requirePending(inv *models.Invoice) error {
	switch inv.PaymentStatus {
	case models.PaymentPending:
		return nil
	case models.PaymentPaid:
		return apperr.Conflict("invoice %d is already paid", inv.ID)
	default:
		return apperr.InvalidTransition("invoice %d is %s", inv.ID, inv.PaymentStatus)
	}
}

// settlementContext builds the discount context for a cashier payment. A
// customer-fixed invoice admits no cashier additions; zero points count as
// none.
func settlementContext(ctx context.Context, repo storage.Repository, inv *models.Invoice, promotionID, points *int64) (discount.Context, error) {
	if points != nil && *points == 0 {
		points = nil
	}
	if inv.CustomerFixed() {
		if promotionID != nil || points != nil {
			return nil, apperr.Validation("the customer has already chosen the discount for invoice %d", inv.ID)
		}
		if inv.CustomerPromotionID != nil {
			promo, err := repo.GetPromotion(ctx, *inv.CustomerPromotionID)
			if err != nil {
				return nil, err
			}
			return discount.CustomerVoucher(promo), nil
		}
		balance, err := repo.PointsBalance(ctx, *inv.CustomerID)
		if err != nil {
			return nil, err
		}
		return discount.CustomerPoints(*inv.CustomerPointsRequested, balance), nil
	}

	var open discount.CashierOpen
	if promotionID != nil {
		promo, err := repo.GetPromotion(ctx, *promotionID)
		if err != nil {
			return nil, err
		}
		open.Promotion = promo
	}
	if points != nil && *points > 0 {
		if inv.CustomerID == nil {
			return nil, apperr.Validation("points can only be redeemed on a customer's order")
		}
		balance, err := repo.PointsBalance(ctx, *inv.CustomerID)
		if err != nil {
			return nil, err
		}
		open.Points = &discount.Points{Requested: *points, Balance: balance}
	}
	return open, nil
}

// fixChoice stores the customer's choice on inv
func fixChoice(inv *models.Invoice, fixed discount.CustomerFixed) error {
	if promo := fixed.Promotion(); promo != nil {
		id := promo.ID
		inv.CustomerPromotionID = &id
		return nil
	}
	if p := fixed.Points(); p != nil {
		if inv.CustomerID == nil {
			return apperr.Validation("points can only be redeemed on a customer's order")
		}
		requested := p.Requested
		inv.CustomerPointsRequested = &requested
		return nil
	}
	return apperr.Validation("customer discount has no choice")
}

func applyResolution(inv *models.Invoice, r discount.Resolution) {
	inv.DiscountAmount = r.DiscountAmount
	inv.DiscountSource = r.Source
	inv.AppliedPromotionID = r.PromotionID
	inv.AppliedPointsUsed = nil
	if r.PointsUsed > 0 {
		used := r.PointsUsed
		inv.AppliedPointsUsed = &used
	}
	inv.TotalAmount = max(0, inv.Subtotal+inv.Tax-r.DiscountAmount)
}
