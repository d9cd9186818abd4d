package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusDiscontinued Status = "discontinued"
)

// Granularity is how a line is sold: whole base packages or individual units.
type Granularity string

const (
	GranularityPackage Granularity = "package"
	GranularityUnit    Granularity = "unit"
)

func (g Granularity) Valid() bool {
	return g == GranularityPackage || g == GranularityUnit
}

var (
	ErrNotFound           = errors.New("product not found")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrUnitSaleNotAllowed = errors.New("unit sale not allowed")
	ErrInvalidGranularity = errors.New("invalid granularity")
)

// QuantityError reports the accepted bounds next to the rejected quantity.
// Max is zero when the product has no upper bound.
type QuantityError struct {
	ProductID string
	Requested int
	Min       int
	Max       int
}

func (e *QuantityError) Error() string {
	if e.Max > 0 {
		return fmt.Sprintf("quantity %d for product %s outside [%d, %d]", e.Requested, e.ProductID, e.Min, e.Max)
	}
	return fmt.Sprintf("quantity %d for product %s below minimum %d", e.Requested, e.ProductID, e.Min)
}

func (e *QuantityError) Unwrap() error { return ErrQuantityOutOfRange }

// Product is the catalog read model. Stock counters are owned by the stock ledger.
type Product struct {
	ID                   string    `json:"id"`
	SKU                  string    `json:"sku"`
	Name                 string    `json:"name"`
	Brand                string    `json:"brand"`
	Category             string    `json:"category"`
	PriceCents           int64     `json:"price_cents"`
	UnitPriceCents       int64     `json:"unit_price_cents,omitempty"`
	UnitsPerBasePackage  int       `json:"units_per_base_package"`
	AllowUnitSale        bool      `json:"allow_unit_sale"`
	RequiresPrescription bool      `json:"requires_prescription"`
	MinOrderQty          int       `json:"min_order_qty"`
	MaxOrderQty          int       `json:"max_order_qty,omitempty"`
	Status               Status    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (p *Product) Active() bool { return p.Status == StatusActive }

func (p *Product) unitsPerPackage() int {
	if p.UnitsPerBasePackage < 1 {
		return 1
	}
	return p.UnitsPerBasePackage
}

// BaseUnitsNeeded converts a requested quantity into base-package stock.
// Unit purchases round up: 12 tablets from strips of 10 hold 2 strips.
func (p *Product) BaseUnitsNeeded(qty int, g Granularity) (int, error) {
	switch g {
	case GranularityPackage:
		return qty, nil
	case GranularityUnit:
		if !p.AllowUnitSale {
			return 0, fmt.Errorf("%w: product %s", ErrUnitSaleNotAllowed, p.ID)
		}
		n := p.unitsPerPackage()
		return (qty + n - 1) / n, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
}

// Price returns the price of one item at the given granularity.
func (p *Product) Price(g Granularity) int64 {
	if g != GranularityUnit {
		return p.PriceCents
	}
	if p.UnitPriceCents > 0 {
		return p.UnitPriceCents
	}
	n := int64(p.unitsPerPackage())
	return (p.PriceCents + n - 1) / n
}

// CheckQuantity validates qty against the configured order bounds.
func (p *Product) CheckQuantity(qty int) error {
	minQty := p.MinOrderQty
	if minQty < 1 {
		minQty = 1
	}
	if qty < minQty || (p.MaxOrderQty > 0 && qty > p.MaxOrderQty) {
		return &QuantityError{ProductID: p.ID, Requested: qty, Min: minQty, Max: p.MaxOrderQty}
	}
	return nil
}

// Reader is what the core consumes from catalog management.
type Reader interface {
	Get(ctx context.Context, id string) (*Product, error)
}
