package orders

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ariefcatur/go-pharmacy-orders/internal/postgres"
	"github.com/ariefcatur/go-pharmacy-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Sequencer hands out system-wide unique, increasing order numbers.
type Sequencer interface {
	Next(ctx context.Context) (int64, error)
}

func FormatNumber(n int64) string { return fmt.Sprintf("ORD-%08d", n) }

type MemorySequence struct{ n atomic.Int64 }

func (s *MemorySequence) Next(context.Context) (int64, error) { return s.n.Add(1), nil }

type RedisSequence struct{ RDB redis.Cmdable }

func (s *RedisSequence) Next(ctx context.Context) (int64, error) {
	return s.RDB.Incr(ctx, redisx.KeyOrderNumber).Result()
}

type PostgresSequence struct{ DB postgres.DB }

func (s *PostgresSequence) Next(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n)
	return n, err
}
