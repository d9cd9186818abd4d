package reconcile_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunJobs_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks, failures atomic.Int32

	jobs := []reconcile.Job{
		{Name: "count", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			ticks.Add(1)
			return nil
		}},
		{Name: "fail", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			failures.Add(1)
			return errors.New("boom")
		}},
	}

	done := make(chan error, 1)
	go func() { done <- reconcile.RunJobs(ctx, zap.NewNop(), jobs...) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 && failures.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunJobs did not stop")
	}
}

type pruner struct{ calls atomic.Int32 }

func (p *pruner) PruneHistory(_ context.Context, limit int) (int, error) {
	p.calls.Add(1)
	return limit, nil
}

func TestPruneJob(t *testing.T) {
	p := &pruner{}
	j := reconcile.PruneJob(p, 50, time.Hour, zap.NewNop())
	assert.Equal(t, "history-prune", j.Name)
	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
}
