package checkout

import (
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/cart"
	"github.com/shopspring/decimal"
)

var (
	DefaultDeliveryFee   = decimal.NewFromInt(50)
	DefaultFreeThreshold = decimal.NewFromInt(500)
)

// Pricing is the delivery fee policy: a flat fee below FreeThreshold.
type Pricing struct {
	DeliveryFee   decimal.Decimal
	FreeThreshold decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{DeliveryFee: DefaultDeliveryFee, FreeThreshold: DefaultFreeThreshold}
}

type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	Total          decimal.Decimal `json:"total"`
}

func (q Quote) FreeDelivery() bool {
	return q.DeliveryCharge.IsZero()
}

func (p Pricing) Quote(lines []cart.Line) Quote {
	subtotal := cart.Subtotal(lines)
	charge := p.DeliveryFee
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		charge = decimal.Zero
	}
	return Quote{
		Subtotal:       subtotal,
		DeliveryCharge: charge,
		Total:          subtotal.Add(charge),
	}
}

// AmountToFreeDelivery is how much more the customer must add to skip the fee.
func (p Pricing) AmountToFreeDelivery(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FreeThreshold.Sub(subtotal)
}
