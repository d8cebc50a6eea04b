// Package discount computes invoice discounts from promotions and loyalty
// points. Everything here is pure: no storage, no clock.
package discount

import (
	"sort"

	"github.com/shopspring/decimal"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/models"
)

// MinRedemption is the smallest number of points a customer may redeem.
const MinRedemption int64 = 1000

var hundred = decimal.NewFromInt(100)

// Context is the settlement context a discount is resolved under. It is
// either CustomerFixed or CashierOpen.
type Context interface {
	isContext()
}

// Points is a redemption request checked against the customer's balance.
type Points struct {
	Requested int64
	Balance   int64
}

// CustomerFixed is a discount the customer chose before the cashier saw the
// invoice. It holds exactly one choice and cannot be combined with anything.
type CustomerFixed struct {
	promotion *models.Promotion
	points    *Points
}

// CustomerVoucher fixes a promotion as the customer's choice.
func CustomerVoucher(promo *models.Promotion) CustomerFixed {
	return CustomerFixed{promotion: promo}
}

// CustomerPoints fixes a points redemption as the customer's choice.
func CustomerPoints(requested, balance int64) CustomerFixed {
	return CustomerFixed{points: &Points{Requested: requested, Balance: balance}}
}

func (CustomerFixed) isContext() {}

// Promotion returns the fixed voucher, if that was the choice.
func (c CustomerFixed) Promotion() *models.Promotion { return c.promotion }

// Points returns the fixed redemption, if that was the choice.
func (c CustomerFixed) Points() *Points { return c.points }

// CashierOpen lets the cashier apply a promotion and points together.
// The zero value means no discount.
type CashierOpen struct {
	Promotion *models.Promotion
	Points    *Points
}

func (CashierOpen) isContext() {}

// Resolution is the outcome of Resolve.
type Resolution struct {
	DiscountAmount    int64
	PromotionDiscount int64
	PointsUsed        int64
	PromotionID       *int64
	Source            models.DiscountSource
}

// Resolve computes the discount for subtotal and tax under ctx. The
// promotion applies first, points cover at most what is left, and the
// discount never exceeds subtotal+tax.
func Resolve(subtotal, tax int64, ctx Context) (Resolution, error) {
	var promo *models.Promotion
	var points *Points

	switch c := ctx.(type) {
	case CustomerFixed:
		promo, points = c.promotion, c.points
		if promo == nil && points == nil {
			return Resolution{}, apperr.Validation("customer discount has no choice")
		}
	case CashierOpen:
		promo, points = c.Promotion, c.Points
	case nil:
	default:
		return Resolution{}, apperr.Validation("unknown discount context %T", ctx)
	}

	res := Resolution{Source: models.SourceNone}
	remaining := subtotal + tax

	if promo != nil {
		if !Eligible(promo, subtotal) {
			return Resolution{}, apperr.Validation("promotion %s is not available for this order", promo.Code)
		}
		amount := min(PromotionAmount(promo, subtotal), remaining)
		id := promo.ID
		res.PromotionID = &id
		res.PromotionDiscount = amount
		res.Source = models.SourcePromotion
		remaining -= amount
	}

	if points != nil && points.Requested != 0 {
		if err := checkPoints(points); err != nil {
			return Resolution{}, err
		}
		res.PointsUsed = min(points.Requested, remaining)
		if res.Source == models.SourcePromotion {
			res.Source = models.SourcePromotionPoint
		} else {
			res.Source = models.SourcePoints
		}
	}

	res.DiscountAmount = res.PromotionDiscount + res.PointsUsed
	return res, nil
}

func checkPoints(p *Points) error {
	if p.Requested < 0 {
		return apperr.Validation("points must not be negative")
	}
	if p.Requested < MinRedemption {
		return apperr.BelowMinimum("at least %d points must be redeemed, got %d", MinRedemption, p.Requested)
	}
	if p.Requested > p.Balance {
		return apperr.InsufficientPoints("requested %d points, balance is %d", p.Requested, p.Balance)
	}
	return nil
}

// PromotionAmount is the uncapped discount promo gives on subtotal.
func PromotionAmount(promo *models.Promotion, subtotal int64) int64 {
	switch promo.Type {
	case models.PromoPercentage:
		return decimal.NewFromInt(subtotal).Mul(promo.DiscountValue).Div(hundred).Floor().IntPart()
	case models.PromoFixedAmount:
		return promo.DiscountValue.Floor().IntPart()
	}
	return 0
}

// Eligible reports whether promo may be offered for subtotal at all.
func Eligible(promo *models.Promotion, subtotal int64) bool {
	if promo.MinimumOrderAmount != nil && subtotal < *promo.MinimumOrderAmount {
		return false
	}
	if promo.MaxUses != nil && promo.CurrentUses >= *promo.MaxUses {
		return false
	}
	return true
}

// Candidate is an eligible promotion with the discount it would give.
type Candidate struct {
	Promotion models.Promotion `json:"promotion"`
	Discount  int64            `json:"discount"`
}

// Candidates filters catalog down to eligible promotions and ranks them by
// descending discount. catalog must be in insertion order; ties keep it.
func Candidates(subtotal, tax int64, catalog []models.Promotion) []Candidate {
	out := make([]Candidate, 0, len(catalog))
	for _, p := range catalog {
		if !Eligible(&p, subtotal) {
			continue
		}
		out = append(out, Candidate{
			Promotion: p,
			Discount:  min(PromotionAmount(&p, subtotal), subtotal+tax),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Discount > out[j].Discount
	})
	return out
}

// EarnedPoints is the loyalty credit for a paid total: 10 points per 10000.
func EarnedPoints(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / 10000 * 10
}
