package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is a task run on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// RunJobs runs every job on its own ticker until ctx is cancelled. A failing
// run is logged and the job keeps its schedule.
func RunJobs(ctx context.Context, log *zap.Logger, jobs ...Job) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			runJob(ctx, log, j)
			return nil
		})
	}
	return g.Wait()
}

func runJob(ctx context.Context, log *zap.Logger, j Job) {
	log = log.With(zap.String("job", j.Name))
	log.Info("job scheduled", zap.Duration("interval", j.Interval))

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("job run failed", zap.Error(err))
			}
		case <-ctx.Done():
			log.Info("job stopped")
			return
		}
	}
}

// SweepJob wraps the sweeper as a scheduled job.
func SweepJob(s *Sweeper, interval time.Duration) Job {
	return Job{
		Name:     "session-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, _, err := s.TrySweep(ctx)
			return err
		},
	}
}

// HistoryPruner is satisfied by *orders.Service.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, limit int) (int, error)
}

func PruneJob(p HistoryPruner, limit int, interval time.Duration, log *zap.Logger) Job {
	return Job{
		Name:     "history-prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := p.PruneHistory(ctx, limit)
			if n > 0 {
				log.Info("order history pruned", zap.Int("orders", n), zap.Int("limit", limit))
			}
			return err
		},
	}
}
