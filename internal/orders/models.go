package orders

import (
	"errors"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
)

var (
	ErrNotFound               = errors.New("order not found")
	ErrConflict               = errors.New("order was modified concurrently")
	ErrPrescriptionRequired   = errors.New("prescription required")
	ErrPrescriptionNotFound   = errors.New("prescription not found")
	ErrPrescriptionNotPending = errors.New("order is not awaiting prescription verification")
	ErrReservationMismatch    = errors.New("session reservation does not match order requirement")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
)

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentCard           PaymentMethod = "card"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentCashOnDelivery || p == PaymentCard
}

type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
}

type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
}

// Item is an immutable snapshot of a purchased line.
type Item struct {
	ProductID            string              `json:"product_id"`
	SKU                  string              `json:"sku"`
	Name                 string              `json:"name"`
	Brand                string              `json:"brand"`
	Category             string              `json:"category"`
	Granularity          catalog.Granularity `json:"granularity"`
	Quantity             int                 `json:"quantity"`
	UnitPriceCents       int64               `json:"unit_price_cents"`
	LineTotalCents       int64               `json:"line_total_cents"`
	BaseUnits            int                 `json:"base_units"`
	RequiresPrescription bool                `json:"requires_prescription"`
}

type Pricing struct {
	SubtotalCents    int64 `json:"subtotal_cents"`
	DeliveryFeeCents int64 `json:"delivery_fee_cents"`
	TaxCents         int64 `json:"tax_cents"`
	DiscountCents    int64 `json:"discount_cents"`
	TotalCents       int64 `json:"total_cents"`
}

type PrescriptionReview string

const (
	ReviewPending  PrescriptionReview = "pending"
	ReviewApproved PrescriptionReview = "approved"
	ReviewRejected PrescriptionReview = "rejected"
)

type Prescription struct {
	ID         string             `json:"id"`
	Reference  string             `json:"reference"`
	Review     PrescriptionReview `json:"review"`
	Notes      string             `json:"notes,omitempty"`
	ReviewedBy string             `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time         `json:"reviewed_at,omitempty"`
}

type HistoryEntry struct {
	Status Status    `json:"status"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
	Notes  string    `json:"notes,omitempty"`
}

type Revenue struct {
	Recorded    bool       `json:"recorded"`
	GrossCents  int64      `json:"gross_cents"`
	NetCents    int64      `json:"net_cents"`
	ProfitCents int64      `json:"profit_cents"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
}

type Cancellation struct {
	Reason          string    `json:"reason"`
	Actor           string    `json:"actor"`
	At              time.Time `json:"at"`
	RefundCents     int64     `json:"refund_cents"`
	RefundProcessed bool      `json:"refund_processed"`
}

type Order struct {
	ID                 string             `json:"id"`
	Number             string             `json:"number"`
	SessionID          string             `json:"session_id"`
	Owner              cart.Owner         `json:"owner"`
	Contact            Contact            `json:"contact"`
	Items              []Item             `json:"items"`
	Pricing            Pricing            `json:"pricing"`
	PaymentMethod      PaymentMethod      `json:"payment_method"`
	DeliveryAddress    Address            `json:"delivery_address"`
	Status             Status             `json:"status"`
	PrescriptionStatus PrescriptionStatus `json:"prescription_status"`
	Prescriptions      []Prescription     `json:"prescriptions,omitempty"`
	StatusHistory      []HistoryEntry     `json:"status_history"`
	StockDeducted      bool               `json:"stock_deducted"`
	Revenue            Revenue            `json:"revenue"`
	Cancellation       *Cancellation      `json:"cancellation,omitempty"`
	Version            int64              `json:"-"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (o *Order) HasPrescriptionItems() bool {
	for _, it := range o.Items {
		if it.RequiresPrescription {
			return true
		}
	}
	return false
}

func (o *Order) appendHistory(status Status, actor string, at time.Time, notes string) {
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{Status: status, Actor: actor, At: at, Notes: notes})
}

// pruneHistory keeps the newest limit entries and reports whether anything was dropped.
func (o *Order) pruneHistory(limit int) bool {
	if limit <= 0 || len(o.StatusHistory) <= limit {
		return false
	}
	o.StatusHistory = append([]HistoryEntry(nil), o.StatusHistory[len(o.StatusHistory)-limit:]...)
	return true
}

func (o *Order) clone() *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.Prescriptions = append([]Prescription(nil), o.Prescriptions...)
	cp.StatusHistory = append([]HistoryEntry(nil), o.StatusHistory...)
	if o.Cancellation != nil {
		c := *o.Cancellation
		cp.Cancellation = &c
	}
	return &cp
}
