// Package app assembles the services from configuration. Binaries share it so
// that the API and the operational tools run against the same object graph.
package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-orders/internal/config"
	kafkax "github.com/ariefcatur/go-pharmacy-orders/internal/kafka"
	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	"github.com/ariefcatur/go-pharmacy-orders/internal/postgres"
	"github.com/ariefcatur/go-pharmacy-orders/internal/reconcile"
	"github.com/ariefcatur/go-pharmacy-orders/internal/redisx"
	"github.com/ariefcatur/go-pharmacy-orders/internal/stock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Catalog is what the services and the product listing need from a catalog store.
type Catalog interface {
	catalog.Reader
	List(ctx context.Context) ([]catalog.Product, error)
}

type App struct {
	Products Catalog
	Ledger   *stock.Ledger
	Carts    *cart.Service
	Orders   *orders.Service
	Sweeper  *reconcile.Sweeper
	// Redis is nil on the memory backend.
	Redis redis.Cmdable

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{}
	var (
		stockStore stock.Store
		cartStore  cart.Store
		orderStore orders.Store
		seq        orders.Sequencer
		notifier   orders.Notifier = orders.LogNotifier{Log: log}
	)

	switch cfg.StoreBackend {
	case "memory":
		products, counters := Seed()
		a.Products = products
		stockStore = counters
		cartStore = cart.NewMemoryStore()
		orderStore = orders.NewMemoryStore()
		seq = &orders.MemorySequence{}
		log.Warn("running on in-memory stores; state is lost on exit")

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, err
		}

		rdb := redisx.New(cfg.RedisAddr)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb

		a.Products = &catalog.PostgresStore{DB: pool}
		stockStore = &stock.PostgresStore{DB: pool}
		cartStore = &cart.RedisStore{RDB: rdb}
		orderStore = &orders.Repo{DB: pool}
		seq = &orders.PostgresSequence{DB: pool}
		if cfg.OrderSequence == "redis" {
			seq = &orders.RedisSequence{RDB: rdb}
		}

		if len(cfg.KafkaBrokers) > 0 {
			created := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
			changed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, log)
			created.Start(ctx)
			changed.Start(ctx)
			a.closers = append(a.closers, func() {
				created.Close()
				changed.Close()
				created.WaitClosed()
				changed.WaitClosed()
			})
			notifier = &orders.KafkaNotifier{Created: created, Changed: changed, ServiceName: cfg.ServiceName}
		}

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	a.Ledger = stock.NewLedger(stockStore,
		stock.WithMaxRetries(cfg.LedgerMaxRetries),
		stock.WithLogger(log))
	a.Carts = cart.NewService(cartStore, a.Products, a.Ledger,
		cart.WithTTL(cfg.SessionTTL),
		cart.WithLogger(log))
	a.Orders = orders.NewService(orderStore, a.Carts, a.Products, a.Ledger, seq,
		orders.WithPriceRules(orders.PriceRules{
			Fees:      orders.FeeTable{Default: cfg.DeliveryFeeDefault, ByCity: cfg.DeliveryFees},
			TaxRate:   cfg.TaxRate,
			CostRatio: cfg.CostRatio,
		}),
		orders.WithNotifier(notifier),
		orders.WithLogger(log))
	a.Sweeper = reconcile.NewSweeper(a.Carts, cfg.SweepBatchSize, log)
	return a, nil
}

// Jobs returns the background schedule the API runs in-process.
func (a *App) Jobs(cfg config.Config, log *zap.Logger) []reconcile.Job {
	return []reconcile.Job{
		reconcile.SweepJob(a.Sweeper, cfg.SweepInterval),
		reconcile.PruneJob(a.Orders, cfg.HistoryLimit, cfg.HistoryPruneInterval, log),
	}
}
