package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Sessions is the slice of the cart service the sweeper drives. The sweeper has
// no access to storage beyond what request handlers use.
type Sessions interface {
	ListExpired(ctx context.Context, limit int) ([]*cart.Session, error)
	Expire(ctx context.Context, s *cart.Session) (bool, error)
}

type Result struct {
	Scanned  int       `json:"scanned"`
	Expired  int       `json:"expired"`
	Failed   int       `json:"failed"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

type Sweeper struct {
	sessions  Sessions
	batchSize int
	log       *zap.Logger
	now       func() time.Time

	running sync.Mutex
	mu      sync.RWMutex
	last    Result
}

func NewSweeper(sessions Sessions, batchSize int, log *zap.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{sessions: sessions, batchSize: batchSize, log: log, now: time.Now}
}

var tracer = otel.Tracer("github.com/ariefcatur/go-pharmacy-orders/internal/reconcile")

// Sweep expires every active session past its deadline and releases its holds.
// A session that fails stays active with whatever it still holds and is retried
// on the next run; one bad session never aborts the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	s.running.Lock()
	defer s.running.Unlock()
	return s.sweep(ctx)
}

// TrySweep runs a sweep unless one is already in progress.
func (s *Sweeper) TrySweep(ctx context.Context) (Result, bool, error) {
	if !s.running.TryLock() {
		return Result{}, false, nil
	}
	defer s.running.Unlock()
	res, err := s.sweep(ctx)
	return res, true, err
}

// Last returns the outcome of the most recent completed sweep.
func (s *Sweeper) Last() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Sweeper) sweep(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile.sweep")
	defer span.End()

	res := Result{Started: s.now()}
	for {
		batch, err := s.sessions.ListExpired(ctx, s.batchSize)
		if err != nil {
			metrics.OperationErrorsTotal.WithLabelValues("sweep").Inc()
			return res, err
		}
		progress := 0
		for _, sess := range batch {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Scanned++
			ok, err := s.sessions.Expire(ctx, sess)
			switch {
			case err != nil:
				res.Failed++
				metrics.OperationErrorsTotal.WithLabelValues("sweep").Inc()
				s.log.Warn("expire session",
					zap.String("session_id", sess.ID),
					zap.String("owner", sess.Owner.Key()),
					zap.Error(err))
			case ok:
				res.Expired++
				progress++
				metrics.SessionsReconciledTotal.Inc()
			}
		}
		// Failed sessions stay listed; stop once a batch makes no headway.
		if len(batch) < s.batchSize || progress == 0 {
			break
		}
	}
	res.Finished = s.now()

	span.SetAttributes(
		attribute.Int("sweep.expired", res.Expired),
		attribute.Int("sweep.failed", res.Failed),
	)
	if res.Scanned > 0 {
		s.log.Info("sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("expired", res.Expired),
			zap.Int("failed", res.Failed),
			zap.Duration("took", res.Finished.Sub(res.Started)))
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res, nil
}
