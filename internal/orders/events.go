package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type EventItem struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Granularity string `json:"granularity"`
	Qty         int    `json:"qty"`
	LineCents   int64  `json:"line_cents"`
}

type OrderCreatedPayload struct {
	OrderID            string      `json:"order_id"`
	Number             string      `json:"number"`
	OwnerKey           string      `json:"owner_key"`
	Email              string      `json:"email,omitempty"`
	Phone              string      `json:"phone"`
	Items              []EventItem `json:"items"`
	TotalCents         int64       `json:"total_cents"`
	PaymentMethod      string      `json:"payment_method"`
	PrescriptionStatus string      `json:"prescription_status"`
}

type OrderStatusChangedPayload struct {
	OrderID    string `json:"order_id"`
	Number     string `json:"number"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Actor      string `json:"actor"`
	Notes      string `json:"notes,omitempty"`
}

func createdPayload(o *Order) OrderCreatedPayload {
	items := make([]EventItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, EventItem{
			ProductID:   it.ProductID,
			Name:        it.Name,
			Granularity: string(it.Granularity),
			Qty:         it.Quantity,
			LineCents:   it.LineTotalCents,
		})
	}
	return OrderCreatedPayload{
		OrderID:            o.ID,
		Number:             o.Number,
		OwnerKey:           o.Owner.Key(),
		Email:              o.Contact.Email,
		Phone:              o.Contact.Phone,
		Items:              items,
		TotalCents:         o.Pricing.TotalCents,
		PaymentMethod:      string(o.PaymentMethod),
		PrescriptionStatus: string(o.PrescriptionStatus),
	}
}

func statusChangedPayload(o *Order, from Status) OrderStatusChangedPayload {
	p := OrderStatusChangedPayload{
		OrderID:    o.ID,
		Number:     o.Number,
		Email:      o.Contact.Email,
		Phone:      o.Contact.Phone,
		FromStatus: string(from),
		ToStatus:   string(o.Status),
	}
	if n := len(o.StatusHistory); n > 0 {
		p.Actor = o.StatusHistory[n-1].Actor
		p.Notes = o.StatusHistory[n-1].Notes
	}
	return p
}
