package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-floor/internal/apperr"
)

// PromotionType represents how a promotion's value is interpreted
type PromotionType string

const (
	PromoPercentage  PromotionType = "percentage"
	PromoFixedAmount PromotionType = "fixed_amount"
)

// Promotion is a catalog-defined discount rule
type Promotion struct {
	ID                 int64           `json:"id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Type               PromotionType   `json:"type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	MinimumOrderAmount *int64          `json:"minimum_order_amount,omitempty"`
	MaxUses            *int64          `json:"max_uses,omitempty"`
	CurrentUses        int64           `json:"current_uses"`
	CreatedAt          time.Time       `json:"created_at"`
}

// CreatePromotionRequest represents POST /promotions
type CreatePromotionRequest struct {
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Type               string          `json:"type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	MinimumOrderAmount *int64          `json:"minimum_order_amount,omitempty"`
	MaxUses            *int64          `json:"max_uses,omitempty"`
}

// Validate validates the create promotion request
func (req *CreatePromotionRequest) Validate() (*Promotion, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || len(code) > 32 {
		return nil, apperr.Validation("code must be between 1 and 32 characters")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name is required")
	}

	promoType := PromotionType(req.Type)
	switch promoType {
	case PromoPercentage:
		if !req.DiscountValue.IsPositive() || req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return nil, apperr.Validation("percentage discount_value must be in (0, 100]")
		}
	case PromoFixedAmount:
		if !req.DiscountValue.IsPositive() || !req.DiscountValue.Equal(req.DiscountValue.Floor()) {
			return nil, apperr.Validation("fixed_amount discount_value must be a positive whole amount")
		}
	default:
		return nil, apperr.Validation("type must be one of: percentage, fixed_amount")
	}

	if req.MinimumOrderAmount != nil && *req.MinimumOrderAmount < 0 {
		return nil, apperr.Validation("minimum_order_amount must not be negative")
	}
	if req.MaxUses != nil && *req.MaxUses < 1 {
		return nil, apperr.Validation("max_uses must be positive")
	}

	return &Promotion{
		Code:               code,
		Name:               strings.TrimSpace(req.Name),
		Type:               promoType,
		DiscountValue:      req.DiscountValue,
		MinimumOrderAmount: req.MinimumOrderAmount,
		MaxUses:            req.MaxUses,
	}, nil
}

// PointsTransaction is one entry in a customer's loyalty ledger
type PointsTransaction struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Delta      int64     `json:"delta"`
	Reason     string    `json:"reason"`
	InvoiceID  *int64    `json:"invoice_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PointsBalance represents GET /customers/{id}/points
type PointsBalance struct {
	CustomerID int64 `json:"customer_id"`
	Balance    int64 `json:"balance"`
}

// Reasons recorded in the points ledger
const (
	PointsReasonRedeemed = "redeemed"
	PointsReasonEarned   = "earned"
	PointsReasonGranted  = "granted"
)

// GrantPointsRequest represents POST /customers/{id}/points
type GrantPointsRequest struct {
	Points int64 `json:"points"`
}

// Validate validates the grant request
func (req *GrantPointsRequest) Validate() error {
	if req.Points <= 0 {
		return apperr.Validation("points must be positive")
	}
	return nil
}
