package pricing

import (
	"errors"
	"time"

	"github.com/example/verdant/internal/models"
)

// Discount and tax kinds. The computation for each kind lives in exactly one
// switch below so new kinds fail loudly instead of silently computing zero.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"

	TaxPercentage = "percentage"
	TaxFlat       = "flat"
	TaxVAT        = "vat"
	TaxSales      = "sales"
	TaxGST        = "gst"
)

// Coupon evaluation failures. Handlers map these to 400s.
var (
	ErrCouponInactive   = errors.New("coupon is not active")
	ErrCouponNotStarted = errors.New("coupon is not valid yet")
	ErrCouponExpired    = errors.New("coupon has expired")
	ErrBelowMinimum     = errors.New("cart total is below the coupon minimum purchase")
	ErrUsageExhausted   = errors.New("coupon usage limit reached")
	ErrUnknownKind      = errors.New("unknown rule type")
)

// Quote is the result of applying a discount rule to a cart total.
type Quote struct {
	DiscountAmount float64 `json:"discount_amount"`
	FinalTotal     float64 `json:"final_total"`
}

// TaxQuote is the result of applying a tax rule to a subtotal.
type TaxQuote struct {
	TaxAmount float64 `json:"tax_amount"`
	Total     float64 `json:"total"`
}

// Discount evaluates a coupon against a cart total. It is pure: persistence
// and usage counting belong to the caller.
func Discount(c models.Coupon, cartTotal float64, now time.Time) (Quote, error) {
	if !c.IsActive {
		return Quote{}, ErrCouponInactive
	}
	if now.Before(c.ValidFrom) {
		return Quote{}, ErrCouponNotStarted
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return Quote{}, ErrCouponExpired
	}
	if cartTotal < c.MinimumPurchase {
		return Quote{}, ErrBelowMinimum
	}
	if c.MaxUsage > 0 && c.UsedCount >= c.MaxUsage {
		return Quote{}, ErrUsageExhausted
	}

	var discount float64
	switch c.Type {
	case DiscountPercentage:
		discount = cartTotal * c.Value / 100
	case DiscountFixed:
		discount = c.Value
	default:
		return Quote{}, ErrUnknownKind
	}

	if c.MaxDiscount > 0 && discount > c.MaxDiscount {
		discount = c.MaxDiscount
	}
	// A discount can never push the total below zero.
	if discount > cartTotal {
		discount = cartTotal
	}

	return Quote{
		DiscountAmount: discount,
		FinalTotal:     cartTotal - discount,
	}, nil
}

// Tax evaluates a tax rule against a subtotal. Subtotals below the rule's
// threshold are untaxed.
func Tax(rule models.TaxRule, subtotal float64) (TaxQuote, error) {
	if rule.Threshold > 0 && subtotal < rule.Threshold {
		return TaxQuote{TaxAmount: 0, Total: subtotal}, nil
	}

	var tax float64
	switch rule.Type {
	case TaxPercentage, TaxVAT, TaxSales, TaxGST:
		tax = subtotal * rule.Rate / 100
	case TaxFlat:
		tax = rule.Rate
	default:
		return TaxQuote{}, ErrUnknownKind
	}

	return TaxQuote{
		TaxAmount: tax,
		Total:     subtotal + tax,
	}, nil
}
