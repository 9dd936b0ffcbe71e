package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/app"
	"github.com/helios/lifecycle/pkg/config"
	"github.com/helios/lifecycle/pkg/logging"
	"github.com/helios/lifecycle/pkg/scheduler"
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

	if cfg.Scheduler.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.Scheduler.InstanceID = fmt.Sprintf("scheduler-%s-%d", host, os.Getpid())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer container.Close()

	opts := scheduler.Options{
		TickSchedule:  cfg.Scheduler.TickSchedule,
		RetentionDays: cfg.Logging.RetentionDays,
	}
	// ClickHouse expires rows through the table TTL.
	if cfg.Logging.StorageDriver != app.LogDriverClickHouse {
		opts.Logs = container.Logs
	}

	runner, err := scheduler.NewRunner(container.Service, logger, opts)
	if err != nil {
		logger.Fatal("invalid scheduler configuration", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: mux,
	}
	go func() {
		logger.Info("serving metrics", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	logger.Info("scheduler initialized", zap.String("instance_id", cfg.Scheduler.InstanceID))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("scheduler shutting down")
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
