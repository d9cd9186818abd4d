package stock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	ErrNotFound            = errors.New("stock record not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationUnderrun = errors.New("reservation underrun")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrContention          = errors.New("stock ledger contention")
)

// ShortfallError reports how much was asked for against what was available.
type ShortfallError struct {
	ProductID string
	Requested int
	Available int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientStock }

type UnderrunError struct {
	ProductID string
	Requested int
	Reserved  int
}

func (e *UnderrunError) Error() string {
	return fmt.Sprintf("reservation underrun for product %s: deduct %d, reserved %d", e.ProductID, e.Requested, e.Reserved)
}

func (e *UnderrunError) Unwrap() error { return ErrReservationUnderrun }

// Counters is the per-product pair guarded by the ledger.
// Version changes on every successful write.
type Counters struct {
	Stock    int   `json:"stock"`
	Reserved int   `json:"reserved_stock"`
	Version  int64 `json:"-"`
}

func (c Counters) Available() int {
	if a := c.Stock - c.Reserved; a > 0 {
		return a
	}
	return 0
}

// Store persists counters with compare-and-set semantics.
// CompareAndSwap writes next only if the stored version still equals old.Version.
type Store interface {
	Load(ctx context.Context, productID string) (Counters, error)
	CompareAndSwap(ctx context.Context, productID string, old, next Counters) (bool, error)
}

// Ledger is the only mutator of stock and reserved stock.
type Ledger struct {
	store      Store
	log        *zap.Logger
	maxRetries int
}

type Option func(*Ledger)

func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, log: zap.NewNop(), maxRetries: 16}
	for _, o := range opts {
		o(l)
	}
	return l
}

var tracer = otel.Tracer("github.com/ariefcatur/go-pharmacy-orders/internal/stock")

// Snapshot returns the current counters for a product.
func (l *Ledger) Snapshot(ctx context.Context, productID string) (Counters, error) {
	return l.store.Load(ctx, productID)
}

// Reserve holds amount units if stock - reserved covers it.
func (l *Ledger) Reserve(ctx context.Context, productID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: reserve %d", ErrInvalidAmount, amount)
	}
	_, err := l.apply(ctx, "reserve", productID, amount, func(c Counters) (Counters, error) {
		if c.Available() < amount {
			return c, &ShortfallError{ProductID: productID, Requested: amount, Available: c.Available()}
		}
		c.Reserved += amount
		return c, nil
	})
	if err == nil {
		metrics.StockReservedUnits.Add(float64(amount))
	}
	return err
}

// Release gives back up to amount held units and returns how many were released.
// The decrement is clamped at zero, so releasing twice never drives reserved negative.
func (l *Ledger) Release(ctx context.Context, productID string, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: release %d", ErrInvalidAmount, amount)
	}
	released := 0
	_, err := l.apply(ctx, "release", productID, amount, func(c Counters) (Counters, error) {
		released = min(amount, c.Reserved)
		c.Reserved -= released
		return c, nil
	})
	if err != nil {
		return 0, err
	}
	if released < amount {
		l.log.Warn("release clamped",
			zap.String("product_id", productID),
			zap.Int("requested", amount),
			zap.Int("released", released))
	}
	metrics.StockReleasedUnits.Add(float64(released))
	return released, nil
}

// Deduct turns a hold into a permanent reduction of stock.
func (l *Ledger) Deduct(ctx context.Context, productID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: deduct %d", ErrInvalidAmount, amount)
	}
	_, err := l.apply(ctx, "deduct", productID, amount, func(c Counters) (Counters, error) {
		if c.Reserved < amount {
			return c, &UnderrunError{ProductID: productID, Requested: amount, Reserved: c.Reserved}
		}
		c.Stock -= amount
		c.Reserved -= amount
		return c, nil
	})
	if err == nil {
		metrics.StockDeductedUnits.Add(float64(amount))
	}
	return err
}

// Restock returns previously deducted units to stock.
func (l *Ledger) Restock(ctx context.Context, productID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: restock %d", ErrInvalidAmount, amount)
	}
	_, err := l.apply(ctx, "restock", productID, amount, func(c Counters) (Counters, error) {
		c.Stock += amount
		return c, nil
	})
	return err
}

// ReverseDeduct undoes a Deduct: stock and reserved both grow by amount.
func (l *Ledger) ReverseDeduct(ctx context.Context, productID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: reverse deduct %d", ErrInvalidAmount, amount)
	}
	_, err := l.apply(ctx, "reverse_deduct", productID, amount, func(c Counters) (Counters, error) {
		c.Stock += amount
		c.Reserved += amount
		return c, nil
	})
	return err
}

// apply runs a read-compute-conditional-write loop until the write lands,
// the mutation rejects the counters, or retries run out.
func (l *Ledger) apply(ctx context.Context, op, productID string, amount int, mutate func(Counters) (Counters, error)) (Counters, error) {
	ctx, span := tracer.Start(ctx, "stock."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int("stock.amount", amount),
	)

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		cur, err := l.store.Load(ctx, productID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load")
			return Counters{}, err
		}
		next, err := mutate(cur)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return cur, err
		}
		if next.Stock == cur.Stock && next.Reserved == cur.Reserved {
			return cur, nil
		}
		ok, err := l.store.CompareAndSwap(ctx, productID, cur, next)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compare and swap")
			return Counters{}, err
		}
		if ok {
			span.SetAttributes(attribute.Int("stock.attempts", attempt+1))
			return next, nil
		}

		metrics.LedgerConflictsTotal.Inc()
		select {
		case <-ctx.Done():
			return Counters{}, ctx.Err()
		case <-time.After(time.Duration(rand.IntN(1+attempt*2)) * time.Millisecond):
		}
	}

	metrics.OperationErrorsTotal.WithLabelValues("stock_" + op).Inc()
	span.SetStatus(codes.Error, "contention")
	return Counters{}, fmt.Errorf("%w: %s on product %s after %d attempts", ErrContention, op, productID, l.maxRetries)
}
