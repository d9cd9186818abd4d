package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrItemNotFound     = errors.New("cart item not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrSessionConverted = errors.New("session already converted")
	ErrSessionEmpty     = errors.New("session empty")
	ErrInvalidOwner     = errors.New("session owner must be exactly one of account id or guest token")
	ErrConflict         = errors.New("session was modified concurrently")
)

// Owner identifies the shopper. Exactly one field is set.
type Owner struct {
	AccountID  string `json:"account_id,omitempty"`
	GuestToken string `json:"guest_token,omitempty"`
}

func (o Owner) Validate() error {
	if (o.AccountID == "") == (o.GuestToken == "") {
		return ErrInvalidOwner
	}
	return nil
}

func (o Owner) IsGuest() bool { return o.GuestToken != "" }

// Key is the storage key for the owner, prefixed so ids from both spaces never collide.
func (o Owner) Key() string {
	if o.AccountID != "" {
		return "acct:" + o.AccountID
	}
	return "guest:" + o.GuestToken
}

type Item struct {
	ProductID         string              `json:"product_id"`
	Name              string              `json:"name"`
	Granularity       catalog.Granularity `json:"granularity"`
	Quantity          int                 `json:"quantity"`
	UnitPriceCents    int64               `json:"unit_price_cents"`
	LineTotalCents    int64               `json:"line_total_cents"`
	ReservedBaseUnits int                 `json:"reserved_base_units"`
	AddedAt           time.Time           `json:"added_at"`
}

type Session struct {
	ID            string    `json:"id"`
	Owner         Owner     `json:"owner"`
	Items         []Item    `json:"items"`
	SubtotalCents int64     `json:"subtotal_cents"`
	TotalItems    int       `json:"total_items"`
	Status        Status    `json:"status"`
	OrderID       string    `json:"order_id,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Version is bumped by every successful Save; a Save carrying a stale
	// version fails with ErrConflict.
	Version int64 `json:"version"`
}

func (s *Session) IsExpired(now time.Time) bool { return s.ExpiresAt.Before(now) }

// ReservedFor sums the base units this session holds for a product across granularities.
func (s *Session) ReservedFor(productID string) int {
	n := 0
	for _, it := range s.Items {
		if it.ProductID == productID {
			n += it.ReservedBaseUnits
		}
	}
	return n
}

func (s *Session) held() int {
	n := 0
	for _, it := range s.Items {
		n += it.ReservedBaseUnits
	}
	return n
}

// pendingRelease reports whether holds may still be outstanding: every active
// session, and expired ones whose release did not complete.
func (s *Session) pendingRelease() bool {
	return s.Status == StatusActive || (s.Status == StatusExpired && s.held() > 0)
}

func (s *Session) find(productID string, g catalog.Granularity) int {
	for i, it := range s.Items {
		if it.ProductID == productID && it.Granularity == g {
			return i
		}
	}
	return -1
}

func (s *Session) recompute() {
	s.SubtotalCents, s.TotalItems = 0, 0
	for i := range s.Items {
		it := &s.Items[i]
		it.LineTotalCents = it.UnitPriceCents * int64(it.Quantity)
		s.SubtotalCents += it.LineTotalCents
		s.TotalItems += it.Quantity
	}
}

// checkMutable rejects sessions that can no longer hold stock.
func (s *Session) checkMutable(now time.Time) error {
	switch {
	case s.Status == StatusConverted:
		return fmt.Errorf("%w: %s", ErrSessionConverted, s.ID)
	case s.Status == StatusExpired, s.IsExpired(now):
		return fmt.Errorf("%w: %s", ErrSessionExpired, s.ID)
	}
	return nil
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Items = append([]Item(nil), s.Items...)
	return &cp
}
