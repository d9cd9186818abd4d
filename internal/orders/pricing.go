package orders

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FeeTable maps a delivery city to a flat fee. Unknown cities pay Default.
type FeeTable struct {
	Default int64
	ByCity  map[string]int64
}

func (f FeeTable) For(a Address) int64 {
	if fee, ok := f.ByCity[strings.ToLower(strings.TrimSpace(a.City))]; ok {
		return fee
	}
	return f.Default
}

// PriceRules holds the knobs pricing and revenue recognition depend on.
type PriceRules struct {
	Fees      FeeTable
	TaxRate   decimal.Decimal
	CostRatio decimal.Decimal
}

func DefaultPriceRules() PriceRules {
	return PriceRules{
		Fees:      FeeTable{Default: 5000},
		TaxRate:   decimal.Zero,
		CostRatio: decimal.RequireFromString("0.7"),
	}
}

func cents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// price recomputes every derived amount from the items.
// total = subtotal + delivery fee + tax - discount.
func (r PriceRules) price(items []Item, deliveryFee, discount int64) Pricing {
	var p Pricing
	for i := range items {
		items[i].LineTotalCents = items[i].UnitPriceCents * int64(items[i].Quantity)
		p.SubtotalCents += items[i].LineTotalCents
	}
	p.DeliveryFeeCents = deliveryFee
	p.TaxCents = cents(decimal.NewFromInt(p.SubtotalCents).Mul(r.TaxRate))
	p.DiscountCents = discount
	p.TotalCents = p.SubtotalCents + p.DeliveryFeeCents + p.TaxCents - p.DiscountCents
	return p
}

// revenue derives the delivery-time figures. Without real cost data every line
// is assumed to cost CostRatio of its total.
func (r PriceRules) revenue(o *Order) (gross, net, profit int64) {
	gross = o.Pricing.TotalCents
	net = gross - o.Pricing.DeliveryFeeCents
	cost := decimal.Zero
	for _, it := range o.Items {
		cost = cost.Add(decimal.NewFromInt(it.LineTotalCents).Mul(r.CostRatio))
	}
	profit = net - cents(cost)
	return gross, net, profit
}
