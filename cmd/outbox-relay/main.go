package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/config"
	"github.com/helios/lifecycle/pkg/eventbus"
	"github.com/helios/lifecycle/pkg/logging"
	"github.com/helios/lifecycle/pkg/outbox"
	"github.com/helios/lifecycle/pkg/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	producer := eventbus.NewKafkaProducer(cfg.Kafka)
	defer producer.Close()

	repo := postgres.NewOutboxRepository(db.DB())
	relay := outbox.NewRelay(repo, producer, logger, outbox.Options{
		PollInterval:       cfg.Outbox.PollInterval,
		BatchSize:          cfg.Outbox.BatchSize,
		PublishedRetention: cfg.Outbox.PublishedRetention,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("outbox relay stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("outbox relay shutting down")
	cancel()
	<-done
}
