package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the part of the stock ledger a session needs.
type Ledger interface {
	Reserve(ctx context.Context, productID string, amount int) error
	Release(ctx context.Context, productID string, amount int) (int, error)
}

const DefaultTTL = 30 * time.Minute

// maxSaveAttempts bounds retries of a session write that lost to a concurrent one.
const maxSaveAttempts = 3

type Service struct {
	store   Store
	catalog catalog.Reader
	ledger  Ledger
	log     *zap.Logger
	ttl     time.Duration
	now     func() time.Time
}

type Option func(*Service)

func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(store Store, products catalog.Reader, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: products,
		ledger:  ledger,
		log:     zap.NewNop(),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// GetOrCreate returns the owner's live session or starts a new one.
// A session that timed out but was not swept yet is reclaimed first.
func (s *Service) GetOrCreate(ctx context.Context, owner Owner) (*Session, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	now := s.now()

	sess, err := s.store.ActiveByOwner(ctx, owner.Key())
	switch {
	case err == nil && !sess.IsExpired(now):
		return sess, nil
	case err == nil:
		// Holds the reclaim could not release stay listed for the sweeper.
		if _, err := s.Expire(ctx, sess); err != nil {
			s.log.Warn("reclaim stale session", zap.String("session_id", sess.ID), zap.Error(err))
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	sess = &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Items:     []Item{},
		Status:    StatusActive,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// load fetches a session for mutation. Timed-out sessions have their holds released
// on the spot instead of waiting for the sweeper.
func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := sess.checkMutable(now); err != nil {
		if sess.Status == StatusActive && sess.IsExpired(now) {
			if _, xerr := s.Expire(ctx, sess); xerr != nil {
				s.log.Warn("release expired session", zap.String("session_id", id), zap.Error(xerr))
			}
		}
		return nil, err
	}
	return sess, nil
}

// AddItem reserves stock for qty more items and merges them into an existing
// line with the same product and granularity.
func (s *Service) AddItem(ctx context.Context, sessionID, productID string, qty int, g catalog.Granularity) (*Session, error) {
	if qty < 1 {
		return nil, &catalog.QuantityError{ProductID: productID, Requested: qty, Min: 1}
	}
	p, err := s.product(ctx, productID, g)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, sessionID, func(sess *Session) (func(context.Context), error) {
		idx := sess.find(productID, g)
		total, held := qty, 0
		if idx >= 0 {
			total += sess.Items[idx].Quantity
			held = sess.Items[idx].ReservedBaseUnits
		}
		if err := p.CheckQuantity(total); err != nil {
			return nil, err
		}
		needed, err := p.BaseUnitsNeeded(total, g)
		if err != nil {
			return nil, err
		}

		undo, err := s.adjust(ctx, productID, needed-held)
		if err != nil {
			return nil, err
		}
		if idx >= 0 {
			sess.Items[idx].Quantity = total
			sess.Items[idx].ReservedBaseUnits = needed
			sess.Items[idx].UnitPriceCents = p.Price(g)
		} else {
			sess.Items = append(sess.Items, Item{
				ProductID:         p.ID,
				Name:              p.Name,
				Granularity:       g,
				Quantity:          total,
				UnitPriceCents:    p.Price(g),
				ReservedBaseUnits: needed,
				AddedAt:           s.now(),
			})
		}
		return undo, nil
	})
}

// UpdateItem sets a line to newQty, reserving or releasing only the difference.
// Zero removes the line.
func (s *Service) UpdateItem(ctx context.Context, sessionID, productID string, g catalog.Granularity, newQty int) (*Session, error) {
	if newQty == 0 {
		return s.RemoveItem(ctx, sessionID, productID, g)
	}
	if newQty < 0 {
		return nil, &catalog.QuantityError{ProductID: productID, Requested: newQty, Min: 1}
	}
	p, err := s.product(ctx, productID, g)
	if err != nil {
		return nil, err
	}
	if err := p.CheckQuantity(newQty); err != nil {
		return nil, err
	}
	needed, err := p.BaseUnitsNeeded(newQty, g)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, sessionID, func(sess *Session) (func(context.Context), error) {
		idx := sess.find(productID, g)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s/%s", ErrItemNotFound, productID, g)
		}
		undo, err := s.adjust(ctx, productID, needed-sess.Items[idx].ReservedBaseUnits)
		if err != nil {
			return nil, err
		}
		sess.Items[idx].Quantity = newQty
		sess.Items[idx].ReservedBaseUnits = needed
		sess.Items[idx].UnitPriceCents = p.Price(g)
		return undo, nil
	})
}

// RemoveItem releases exactly what the line holds and drops it.
func (s *Service) RemoveItem(ctx context.Context, sessionID, productID string, g catalog.Granularity) (*Session, error) {
	return s.mutate(ctx, sessionID, func(sess *Session) (func(context.Context), error) {
		idx := sess.find(productID, g)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s/%s", ErrItemNotFound, productID, g)
		}
		undo, err := s.adjust(ctx, productID, -sess.Items[idx].ReservedBaseUnits)
		if err != nil {
			return nil, err
		}
		sess.Items = append(sess.Items[:idx], sess.Items[idx+1:]...)
		return undo, nil
	})
}

// Clear releases every line. Lines whose release failed stay in the session
// so their holds can still be released later.
func (s *Service) Clear(ctx context.Context, sessionID string) (*Session, error) {
	for attempt := 1; ; attempt++ {
		sess, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		undo, errs := s.releaseLines(ctx, sess, false)
		out, err := s.commit(ctx, sess, undo)
		if errors.Is(err, ErrConflict) && attempt < maxSaveAttempts {
			continue
		}
		if err != nil {
			return nil, errors.Join(errs, err)
		}
		return out, errs
	}
}

// Expire releases the session's holds and marks it expired. The session is claimed
// first by saving it as expired, so of several callers holding the same snapshot
// only one releases anything. It reports whether every hold is now released; lines
// whose release failed keep their hold and the sweeper picks the session up again.
func (s *Service) Expire(ctx context.Context, sess *Session) (bool, error) {
	if !sess.pendingRelease() {
		return false, nil
	}
	claimed := sess.clone()
	claimed.Status = StatusExpired
	claimed.UpdatedAt = s.now()
	if err := s.store.Save(ctx, claimed); err != nil {
		if errors.Is(err, ErrConflict) {
			// Someone else moved the session on; its new state gets swept on its own.
			return false, nil
		}
		return false, err
	}

	undo, errs := s.releaseLines(ctx, claimed, true)
	claimed.recompute()
	claimed.UpdatedAt = s.now()
	if err := s.store.Save(ctx, claimed); err != nil {
		// The stored copy still lists the old holds; put the ledger back to match it.
		undo(context.WithoutCancel(ctx))
		return false, errors.Join(errs, err)
	}
	return errs == nil, errs
}

// ListExpired exposes timed-out sessions that may still hold stock to the sweeper.
func (s *Service) ListExpired(ctx context.Context, limit int) ([]*Session, error) {
	return s.store.ListExpired(ctx, s.now(), limit)
}

// MarkConverted hands the session's holds over to an order. snapshot is the state the
// order was built from; if the session changed since, ErrConflict is returned.
// Stock stays reserved.
func (s *Service) MarkConverted(ctx context.Context, snapshot *Session, orderID string) (*Session, error) {
	if err := snapshot.checkMutable(s.now()); err != nil {
		return nil, err
	}
	if len(snapshot.Items) == 0 {
		return nil, ErrSessionEmpty
	}
	sess := snapshot.clone()
	sess.Status = StatusConverted
	sess.OrderID = orderID
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reopen reverts MarkConverted when the order could not be persisted.
func (s *Service) Reopen(ctx context.Context, sessionID string) error {
	for attempt := 1; ; attempt++ {
		sess, err := s.store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != StatusConverted {
			return nil
		}
		sess.Status = StatusActive
		sess.OrderID = ""
		sess.ExpiresAt = s.now().Add(s.ttl)
		err = s.store.Save(ctx, sess)
		if errors.Is(err, ErrConflict) && attempt < maxSaveAttempts {
			continue
		}
		return err
	}
}

func (s *Service) product(ctx context.Context, productID string, g catalog.Granularity) (*catalog.Product, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %q", catalog.ErrInvalidGranularity, g)
	}
	p, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Active() {
		return nil, fmt.Errorf("%w: %s", catalog.ErrProductUnavailable, productID)
	}
	if g == catalog.GranularityUnit && !p.AllowUnitSale {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnitSaleNotAllowed, productID)
	}
	return p, nil
}

// adjust reserves a positive delta or releases a negative one, returning the
// compensating action.
func (s *Service) adjust(ctx context.Context, productID string, delta int) (func(context.Context), error) {
	switch {
	case delta > 0:
		if err := s.ledger.Reserve(ctx, productID, delta); err != nil {
			return nil, err
		}
		return func(ctx context.Context) {
			if _, err := s.ledger.Release(ctx, productID, delta); err != nil {
				s.log.Error("rollback reserve", zap.String("product_id", productID), zap.Int("units", delta), zap.Error(err))
			}
		}, nil
	case delta < 0:
		released, err := s.ledger.Release(ctx, productID, -delta)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) {
			if err := s.ledger.Reserve(ctx, productID, released); err != nil {
				s.log.Error("rollback release", zap.String("product_id", productID), zap.Int("units", released), zap.Error(err))
			}
		}, nil
	}
	return func(context.Context) {}, nil
}

// mutate loads the session, applies change and commits the result. change makes the
// ledger calls and returns their compensation; when a concurrent write wins the save,
// the compensation runs and the whole step is retried on a fresh copy.
func (s *Service) mutate(ctx context.Context, sessionID string, change func(*Session) (func(context.Context), error)) (*Session, error) {
	for attempt := 1; ; attempt++ {
		sess, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		undo, err := change(sess)
		if err != nil {
			return nil, err
		}
		out, err := s.commit(ctx, sess, undo)
		if errors.Is(err, ErrConflict) && attempt < maxSaveAttempts {
			continue
		}
		return out, err
	}
}

// commit persists a mutated session with a refreshed expiry. If the write fails
// the ledger change is compensated before the error is returned.
func (s *Service) commit(ctx context.Context, sess *Session, undo func(context.Context)) (*Session, error) {
	now := s.now()
	sess.recompute()
	sess.ExpiresAt = now.Add(s.ttl)
	sess.UpdatedAt = now
	if err := s.store.Save(ctx, sess); err != nil {
		if undo != nil {
			undo(context.WithoutCancel(ctx))
		}
		return nil, err
	}
	return sess, nil
}

// releaseLines releases every line's hold and returns the compensation that reserves
// the released units again. Lines whose release failed are always kept; released
// lines are kept with a zero hold when keep is set, for the abandonment record.
func (s *Service) releaseLines(ctx context.Context, sess *Session, keep bool) (func(context.Context), error) {
	type hold struct {
		productID string
		units     int
	}
	var (
		errs     error
		released []hold
	)
	kept := sess.Items[:0]
	for _, it := range sess.Items {
		if it.ReservedBaseUnits > 0 {
			n, err := s.ledger.Release(ctx, it.ProductID, it.ReservedBaseUnits)
			if err != nil {
				errs = errors.Join(errs, fmt.Errorf("release %s: %w", it.ProductID, err))
				kept = append(kept, it)
				continue
			}
			released = append(released, hold{it.ProductID, n})
		}
		if keep {
			it.ReservedBaseUnits = 0
			kept = append(kept, it)
		}
	}
	sess.Items = kept

	undo := func(ctx context.Context) {
		for _, h := range released {
			if h.units == 0 {
				continue
			}
			if err := s.ledger.Reserve(ctx, h.productID, h.units); err != nil {
				s.log.Error("rollback release",
					zap.String("session_id", sess.ID),
					zap.String("product_id", h.productID),
					zap.Int("units", h.units),
					zap.Error(err))
			}
		}
	}
	return undo, errs
}
