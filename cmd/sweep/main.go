// Command sweep runs one reconciliation pass and exits. It is meant for cron
// or for operators reclaiming stock by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-pharmacy-orders/internal/app"
	"github.com/ariefcatur/go-pharmacy-orders/internal/config"
	"github.com/ariefcatur/go-pharmacy-orders/internal/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	prune := flag.Bool("prune", false, "also trim order status history")
	flag.Parse()
	os.Exit(run(*prune))
}

func run(prune bool) int {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("build", zap.Error(err))
		return 1
	}
	defer a.Close()

	res, err := a.Sweeper.Sweep(ctx)
	if err != nil {
		log.Error("sweep", zap.Error(err))
		return 1
	}
	fmt.Printf("scanned=%d expired=%d failed=%d\n", res.Scanned, res.Expired, res.Failed)

	if prune {
		n, err := a.Orders.PruneHistory(ctx, cfg.HistoryLimit)
		if err != nil {
			log.Error("prune history", zap.Error(err))
			return 1
		}
		fmt.Printf("pruned=%d\n", n)
	}
	if res.Failed > 0 {
		return 2
	}
	return 0
}
