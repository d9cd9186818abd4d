package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-pharmacy-orders/internal/config"
	kafkax "github.com/ariefcatur/go-pharmacy-orders/internal/kafka"
	"github.com/ariefcatur/go-pharmacy-orders/internal/logger"
	"github.com/ariefcatur/go-pharmacy-orders/internal/notify"
	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	"github.com/ariefcatur/go-pharmacy-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Redis:       rdb,
		Mailer:      notify.LogMailer{Log: log},
		ServiceName: cfg.ServiceName + "-notifier",
		Log:         log,
	}

	topics := []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topics, cfg.NotifierWorkers, log)
	log.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup),
		zap.Strings("topics", topics),
		zap.Int("workers", cfg.NotifierWorkers))

	if err := cons.Start(ctx, svc.HandleEvent); err != nil && ctx.Err() == nil {
		log.Fatal("consumer exit", zap.Error(err))
	}
	log.Info("notifier stopped")
}
