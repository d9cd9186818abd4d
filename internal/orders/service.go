package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-orders/internal/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Ledger is the part of the stock ledger the order lifecycle drives.
type Ledger interface {
	Reserve(ctx context.Context, productID string, amount int) error
	Release(ctx context.Context, productID string, amount int) (int, error)
	Deduct(ctx context.Context, productID string, amount int) error
	ReverseDeduct(ctx context.Context, productID string, amount int) error
	Restock(ctx context.Context, productID string, amount int) error
}

// Sessions is the checkout-facing part of the cart service.
type Sessions interface {
	Get(ctx context.Context, id string) (*cart.Session, error)
	MarkConverted(ctx context.Context, snapshot *cart.Session, orderID string) (*cart.Session, error)
	Reopen(ctx context.Context, sessionID string) error
}

type Service struct {
	store    Store
	sessions Sessions
	catalog  catalog.Reader
	ledger   Ledger
	seq      Sequencer
	notifier Notifier
	rules    PriceRules
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithPriceRules(r PriceRules) Option { return func(s *Service) { s.rules = r } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithLogger(log *zap.Logger) Option { return func(s *Service) { s.log = log } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, sessions Sessions, products catalog.Reader, ledger Ledger, seq Sequencer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sessions: sessions,
		catalog:  products,
		ledger:   ledger,
		seq:      seq,
		rules:    DefaultPriceRules(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Log: s.log}
	}
	return s
}

var tracer = otel.Tracer("github.com/ariefcatur/go-pharmacy-orders/internal/orders")

type PrescriptionInput struct {
	Reference string `json:"reference"`
}

type CheckoutRequest struct {
	SessionID     string
	Owner         cart.Owner
	Address       Address
	Contact       Contact
	PaymentMethod PaymentMethod
	Prescriptions []PrescriptionInput
}

// CreateFromSession turns a reservation session into a pending order. The session's
// holds move to the order untouched. Either the order exists and the session is
// converted, or neither happened.
func (s *Service) CreateFromSession(ctx context.Context, req CheckoutRequest) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.create_from_session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	o, err := s.createFromSession(ctx, req)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("checkout").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.number", o.Number))
	return o, nil
}

func (s *Service) createFromSession(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if !req.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.Owner != (cart.Owner{}) && req.Owner != sess.Owner {
		return nil, cart.ErrNotFound
	}

	now := s.now()
	switch {
	case sess.Status == cart.StatusConverted:
		return nil, fmt.Errorf("%w: %s", cart.ErrSessionConverted, sess.ID)
	case sess.Status == cart.StatusExpired, sess.IsExpired(now):
		return nil, fmt.Errorf("%w: %s", cart.ErrSessionExpired, sess.ID)
	case len(sess.Items) == 0:
		return nil, fmt.Errorf("%w: %s", cart.ErrSessionEmpty, sess.ID)
	}

	items := make([]Item, 0, len(sess.Items))
	hasRx := false
	for _, line := range sess.Items {
		p, err := s.catalog.Get(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, err)
		}
		if !p.Active() {
			return nil, fmt.Errorf("%w: %s", catalog.ErrProductUnavailable, p.ID)
		}
		needed, err := p.BaseUnitsNeeded(line.Quantity, line.Granularity)
		if err != nil {
			return nil, err
		}
		if needed != line.ReservedBaseUnits {
			return nil, fmt.Errorf("%w: product %s holds %d, needs %d", ErrReservationMismatch, p.ID, line.ReservedBaseUnits, needed)
		}
		hasRx = hasRx || p.RequiresPrescription
		items = append(items, Item{
			ProductID:            p.ID,
			SKU:                  p.SKU,
			Name:                 p.Name,
			Brand:                p.Brand,
			Category:             p.Category,
			Granularity:          line.Granularity,
			Quantity:             line.Quantity,
			UnitPriceCents:       p.Price(line.Granularity),
			BaseUnits:            needed,
			RequiresPrescription: p.RequiresPrescription,
		})
	}
	if hasRx && len(req.Prescriptions) == 0 {
		return nil, ErrPrescriptionRequired
	}

	contact := req.Contact
	if contact.Phone == "" {
		contact.Phone = req.Address.Phone
	}
	o := &Order{
		ID:                 uuid.NewString(),
		SessionID:          sess.ID,
		Owner:              sess.Owner,
		Contact:            contact,
		Items:              items,
		PaymentMethod:      req.PaymentMethod,
		DeliveryAddress:    req.Address,
		Status:             StatusPending,
		PrescriptionStatus: PrescriptionNotRequired,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if hasRx {
		o.PrescriptionStatus = PrescriptionPending
	}
	for _, in := range req.Prescriptions {
		o.Prescriptions = append(o.Prescriptions, Prescription{ID: uuid.NewString(), Reference: in.Reference, Review: ReviewPending})
	}
	o.Pricing = s.rules.price(o.Items, s.rules.Fees.For(req.Address), 0)
	o.appendHistory(StatusPending, sess.Owner.Key(), now, "order placed")

	n, err := s.seq.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("order number: %w", err)
	}
	o.Number = FormatNumber(n)

	if _, err := s.sessions.MarkConverted(ctx, sess, o.ID); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, o); err != nil {
		if rerr := s.sessions.Reopen(context.WithoutCancel(ctx), sess.ID); rerr != nil {
			s.log.Error("reopen session after failed checkout", zap.String("session_id", sess.ID), zap.Error(rerr))
		}
		return nil, err
	}

	metrics.OrdersCreatedTotal.Inc()
	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.Int64("total_cents", o.Pricing.TotalCents))
	if err := s.notifier.OrderCreated(ctx, o); err != nil {
		s.log.Warn("notify order created", zap.String("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, owner cart.Owner, limit int) ([]*Order, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListByOwner(ctx, owner.Key(), limit)
}

// TransitionStatus moves an order along the status table and applies the
// stock and revenue side effects of the target status.
func (s *Service) TransitionStatus(ctx context.Context, orderID string, to Status, actor, notes string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, o, to, actor, notes); err != nil {
		return nil, err
	}
	return o, nil
}

type undoFunc func(context.Context) error

func (s *Service) transition(ctx context.Context, o *Order, to Status, actor, notes string) error {
	ctx, span := tracer.Start(ctx, "orders.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.from", string(o.Status)),
		attribute.String("order.to", string(to)),
	)

	if !to.Valid() {
		return &TransitionError{From: o.Status, To: to, Reason: "unknown status"}
	}
	if err := checkTransition(o, to); err != nil {
		return err
	}

	var undo []undoFunc
	rollback := func() {
		bg := context.WithoutCancel(ctx)
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](bg); err != nil {
				s.log.Error("compensate stock", zap.String("order_id", o.ID), zap.Error(err))
			}
		}
	}
	fail := func(err error) error {
		rollback()
		metrics.OperationErrorsTotal.WithLabelValues("transition").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return err
	}

	from := o.Status
	now := s.now()
	recognised := false

	switch to {
	case StatusConfirmed:
		for _, it := range o.Items {
			id, n := it.ProductID, it.BaseUnits
			if err := s.ledger.Deduct(ctx, id, n); err != nil {
				return fail(fmt.Errorf("deduct %s: %w", id, err))
			}
			undo = append(undo, func(ctx context.Context) error { return s.ledger.ReverseDeduct(ctx, id, n) })
		}
		o.StockDeducted = true

	case StatusDelivered:
		if !o.Revenue.Recorded {
			gross, net, profit := s.rules.revenue(o)
			o.Revenue = Revenue{Recorded: true, GrossCents: gross, NetCents: net, ProfitCents: profit, RecordedAt: &now}
			recognised = true
		}

	case StatusCancelled:
		for _, it := range o.Items {
			id, n := it.ProductID, it.BaseUnits
			if o.StockDeducted {
				if err := s.ledger.Restock(ctx, id, n); err != nil {
					return fail(fmt.Errorf("restock %s: %w", id, err))
				}
				undo = append(undo, func(ctx context.Context) error {
					if err := s.ledger.Reserve(ctx, id, n); err != nil {
						return err
					}
					return s.ledger.Deduct(ctx, id, n)
				})
				continue
			}
			released, err := s.ledger.Release(ctx, id, n)
			if err != nil {
				return fail(fmt.Errorf("release %s: %w", id, err))
			}
			undo = append(undo, func(ctx context.Context) error { return s.ledger.Reserve(ctx, id, released) })
		}
		refund := int64(0)
		if o.PaymentMethod == PaymentCard {
			refund = o.Pricing.TotalCents
		}
		o.Cancellation = &Cancellation{Reason: notes, Actor: actor, At: now, RefundCents: refund}
	}

	o.Status = to
	o.UpdatedAt = now
	o.appendHistory(to, actor, now, notes)
	if err := s.store.Update(ctx, o); err != nil {
		return fail(err)
	}

	metrics.OrderTransitionsTotal.WithLabelValues(string(to)).Inc()
	if recognised {
		metrics.RevenueRecordedCents.Add(float64(o.Revenue.GrossCents))
	}
	s.log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor))
	if err := s.notifier.StatusChanged(ctx, o, from); err != nil {
		s.log.Warn("notify status changed", zap.String("order_id", o.ID), zap.Error(err))
	}
	return nil
}

// VerifyPrescription records a review. All approvals move the order to
// prescription_verified; any rejection cancels it and releases its stock.
func (s *Service) VerifyPrescription(ctx context.Context, orderID, prescriptionID string, approved bool, notes, actor string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending || o.PrescriptionStatus != PrescriptionPending {
		return nil, fmt.Errorf("%w: order %s is %s/%s", ErrPrescriptionNotPending, o.ID, o.Status, o.PrescriptionStatus)
	}

	idx := -1
	for i := range o.Prescriptions {
		if o.Prescriptions[i].ID == prescriptionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPrescriptionNotFound, prescriptionID)
	}

	now := s.now()
	rx := &o.Prescriptions[idx]
	rx.Review = ReviewApproved
	if !approved {
		rx.Review = ReviewRejected
	}
	rx.Notes = notes
	rx.ReviewedBy = actor
	rx.ReviewedAt = &now

	if !approved {
		o.PrescriptionStatus = PrescriptionRejected
		reason := "prescription rejected"
		if notes != "" {
			reason += ": " + notes
		}
		if err := s.transition(ctx, o, StatusCancelled, actor, reason); err != nil {
			return nil, err
		}
		return o, nil
	}

	if allApproved(o.Prescriptions) {
		o.PrescriptionStatus = PrescriptionVerified
		if err := s.transition(ctx, o, StatusPrescriptionVerified, actor, notes); err != nil {
			return nil, err
		}
		return o, nil
	}

	o.UpdatedAt = now
	if err := s.store.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func allApproved(rxs []Prescription) bool {
	for _, rx := range rxs {
		if rx.Review != ReviewApproved {
			return false
		}
	}
	return len(rxs) > 0
}

// PruneHistory trims every order's status history to the newest limit entries.
// Orders modified concurrently are skipped and picked up on the next run.
func (s *Service) PruneHistory(ctx context.Context, limit int) (int, error) {
	list, err := s.store.ListHistoryOver(ctx, limit)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, o := range list {
		if !o.pruneHistory(limit) {
			continue
		}
		if err := s.store.Update(ctx, o); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// Tracking is the public read-only view of an order.
type Tracking struct {
	Number             string             `json:"number"`
	Status             Status             `json:"status"`
	PrescriptionStatus PrescriptionStatus `json:"prescription_status"`
	Items              []TrackingItem     `json:"items"`
	TotalCents         int64              `json:"total_cents"`
	DeliveryAddress    Address            `json:"delivery_address"`
	History            []HistoryEntry     `json:"history"`
	PlacedAt           time.Time          `json:"placed_at"`
}

type TrackingItem struct {
	Name           string              `json:"name"`
	Brand          string              `json:"brand"`
	Granularity    catalog.Granularity `json:"granularity"`
	Quantity       int                 `json:"quantity"`
	LineTotalCents int64               `json:"line_total_cents"`
}

// TrackQuery is the caller's proof of possession.
type TrackQuery struct {
	Phone     string
	AccountID string
}

// Track looks an order up by number. Callers that cannot prove possession get
// ErrNotFound, so order numbers cannot be probed.
func (s *Service) Track(ctx context.Context, number string, q TrackQuery) (*Tracking, error) {
	o, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !possesses(o, q) {
		return nil, ErrNotFound
	}

	t := &Tracking{
		Number:             o.Number,
		Status:             o.Status,
		PrescriptionStatus: o.PrescriptionStatus,
		TotalCents:         o.Pricing.TotalCents,
		DeliveryAddress:    o.DeliveryAddress,
		History:            o.StatusHistory,
		PlacedAt:           o.CreatedAt,
	}
	for _, it := range o.Items {
		t.Items = append(t.Items, TrackingItem{
			Name:           it.Name,
			Brand:          it.Brand,
			Granularity:    it.Granularity,
			Quantity:       it.Quantity,
			LineTotalCents: it.LineTotalCents,
		})
	}
	return t, nil
}

func possesses(o *Order, q TrackQuery) bool {
	if q.AccountID != "" && o.Owner.AccountID == q.AccountID {
		return true
	}
	want := NormalizePhone(q.Phone)
	if want == "" {
		return false
	}
	return want == NormalizePhone(o.Contact.Phone) || want == NormalizePhone(o.DeliveryAddress.Phone)
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
