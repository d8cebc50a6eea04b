package models

import (
	"strings"
	"time"

	"restaurant-floor/internal/apperr"
)

// PaymentStatus represents the settlement status of an invoice
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentMethod represents how an invoice is paid
type PaymentMethod string

const (
	PayCash     PaymentMethod = "cash"
	PayCard     PaymentMethod = "card"
	PayWallet   PaymentMethod = "wallet"
	PayTransfer PaymentMethod = "transfer"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PayCash, PayCard, PayWallet, PayTransfer:
		return true
	}
	return false
}

// DiscountSource records where an invoice's discount came from
type DiscountSource string

const (
	SourceNone           DiscountSource = "none"
	SourcePromotion      DiscountSource = "promotion"
	SourcePoints         DiscountSource = "points"
	SourcePromotionPoint DiscountSource = "promotion+points"
)

// Invoice represents the billing record settling one order
type Invoice struct {
	ID             int64          `json:"id"`
	OrderID        int64          `json:"order_id"`
	CustomerID     *int64         `json:"customer_id,omitempty"`
	Subtotal       int64          `json:"subtotal"`
	Tax            int64          `json:"tax"`
	DiscountAmount int64          `json:"discount_amount"`
	TotalAmount    int64          `json:"total_amount"`
	DiscountSource DiscountSource `json:"discount_source"`
	PaymentMethod  *PaymentMethod `json:"payment_method,omitempty"`
	PaymentStatus  PaymentStatus  `json:"payment_status"`

	AppliedPromotionID *int64 `json:"applied_promotion_id,omitempty"`
	AppliedPointsUsed  *int64 `json:"applied_points_used,omitempty"`

	// Set when the customer fixed their own discount before payment.
	CustomerPromotionID     *int64 `json:"customer_promotion_id,omitempty"`
	CustomerPointsRequested *int64 `json:"customer_points_requested,omitempty"`

	AmountReceived      *int64     `json:"amount_received,omitempty"`
	ChangeDue           *int64     `json:"change_due,omitempty"`
	LoyaltyPointsEarned int64      `json:"loyalty_points_earned"`
	ConfirmedBy         *int64     `json:"confirmed_by,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
}

// CustomerFixed reports whether the customer has already chosen the discount
func (inv *Invoice) CustomerFixed() bool {
	return inv.CustomerPromotionID != nil || inv.CustomerPointsRequested != nil
}

// CreateInvoiceRequest represents POST /invoices
type CreateInvoiceRequest struct {
	OrderID int64   `json:"order_id"`
	Notes   *string `json:"notes,omitempty"`
}

// PayInvoiceRequest represents PATCH /invoices/{id}/paid
type PayInvoiceRequest struct {
	PaymentMethod  string `json:"payment_method"`
	PromotionID    *int64 `json:"promotion_id,omitempty"`
	PointsUsed     *int64 `json:"points_used,omitempty"`
	AmountReceived *int64 `json:"amount_received,omitempty"`
	StaffID        *int64 `json:"staff_id,omitempty"`
}

// ConfirmCashRequest represents PATCH /invoices/{id}/cash
type ConfirmCashRequest struct {
	AmountReceived int64  `json:"amount_received"`
	StaffID        *int64 `json:"staff_id,omitempty"`
}

// CustomerDiscountRequest represents POST /invoices/{id}/customer-discount
type CustomerDiscountRequest struct {
	CustomerID    int64   `json:"customer_id"`
	PromotionCode *string `json:"promotion_code,omitempty"`
	Points        *int64  `json:"points,omitempty"`
}

// Validate validates the create invoice request
func (req *CreateInvoiceRequest) Validate() error {
	if req.OrderID < 1 {
		return apperr.Validation("order_id is required")
	}
	return validateNotes(req.Notes)
}

// Validate validates the pay request
func (req *PayInvoiceRequest) Validate() (PaymentMethod, error) {
	method := PaymentMethod(req.PaymentMethod)
	if !method.Valid() {
		return "", apperr.Validation("payment_method must be one of: cash, card, wallet, transfer")
	}
	if req.PointsUsed != nil && *req.PointsUsed < 0 {
		return "", apperr.Validation("points_used must not be negative")
	}
	if req.AmountReceived != nil && *req.AmountReceived < 0 {
		return "", apperr.Validation("amount_received must not be negative")
	}
	if req.AmountReceived != nil && method != PayCash {
		return "", apperr.Validation("amount_received only applies to cash payments")
	}
	return method, nil
}

// Validate validates the cash confirmation request
func (req *ConfirmCashRequest) Validate() error {
	if req.AmountReceived < 0 {
		return apperr.Validation("amount_received must not be negative")
	}
	return nil
}

// HasPromotionCode reports whether a non-blank voucher code was sent
func (req *CustomerDiscountRequest) HasPromotionCode() bool {
	return req.PromotionCode != nil && strings.TrimSpace(*req.PromotionCode) != ""
}

// Validate checks that exactly one discount choice is present
func (req *CustomerDiscountRequest) Validate() error {
	if req.CustomerID < 1 {
		return apperr.Validation("customer_id is required")
	}
	hasCode := req.HasPromotionCode()
	hasPoints := req.Points != nil
	if hasCode == hasPoints {
		return apperr.Validation("exactly one of promotion_code or points is required")
	}
	if hasPoints && *req.Points <= 0 {
		return apperr.Validation("points must be positive")
	}
	return nil
}
