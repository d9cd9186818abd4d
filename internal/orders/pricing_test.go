package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFeeTable_For(t *testing.T) {
	f := FeeTable{Default: 5000, ByCity: map[string]int64{"dubai": 1500}}
	assert.Equal(t, int64(1500), f.For(Address{City: " Dubai "}))
	assert.Equal(t, int64(5000), f.For(Address{City: "Abu Dhabi"}))
}

func TestPriceRules_Price(t *testing.T) {
	items := []Item{
		{UnitPriceCents: 5000, Quantity: 3},
		{UnitPriceCents: 2500, Quantity: 2},
	}

	p := DefaultPriceRules().price(items, 5000, 0)
	assert.Equal(t, Pricing{SubtotalCents: 20000, DeliveryFeeCents: 5000, TotalCents: 25000}, p)
	assert.Equal(t, int64(15000), items[0].LineTotalCents)

	taxed := PriceRules{TaxRate: decimal.RequireFromString("0.05")}
	p = taxed.price(items, 1000, 500)
	assert.Equal(t, int64(1000), p.TaxCents)
	assert.Equal(t, int64(20000+1000+1000-500), p.TotalCents)
}

func TestPriceRules_Revenue(t *testing.T) {
	o := &Order{
		Items:   []Item{{LineTotalCents: 15000}, {LineTotalCents: 5000}},
		Pricing: Pricing{SubtotalCents: 20000, DeliveryFeeCents: 5000, TotalCents: 25000},
	}

	gross, net, profit := DefaultPriceRules().revenue(o)
	assert.Equal(t, int64(25000), gross)
	assert.Equal(t, int64(20000), net)
	assert.Equal(t, int64(6000), profit)
}
