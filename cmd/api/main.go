package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/app"
	"github.com/ariefcatur/go-pharmacy-orders/internal/config"
	"github.com/ariefcatur/go-pharmacy-orders/internal/httpx"
	"github.com/ariefcatur/go-pharmacy-orders/internal/logger"
	"github.com/ariefcatur/go-pharmacy-orders/internal/observability"
	"github.com/ariefcatur/go-pharmacy-orders/internal/reconcile"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatal("tracing", zap.Error(err))
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("build", zap.Error(err))
	}

	router := httpx.NewRouter(log)
	(&httpx.CartHandler{Carts: a.Carts, Orders: a.Orders, Redis: a.Redis, Log: log}).Register(router)
	(&httpx.OrdersHandler{Orders: a.Orders, Redis: a.Redis, Log: log}).Register(router)
	(&httpx.AdminHandler{
		Orders:   a.Orders,
		Ledger:   a.Ledger,
		Products: a.Products,
		Sweeper:  a.Sweeper,
		Redis:    a.Redis,
		Log:      log,
	}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "pharmacy-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reconcile.RunJobs(gctx, log, a.Jobs(cfg, log)...)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	a.Close()
	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if terr := shutdownTracing(tctx); terr != nil {
		log.Warn("tracing shutdown", zap.Error(terr))
	}
	if err != nil {
		log.Error("exit", zap.Error(err))
		os.Exit(1)
	}
}
