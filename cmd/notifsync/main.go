package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/julianshen/twspoc/pkg/config"
	"github.com/julianshen/twspoc/pkg/instance"
	"github.com/julianshen/twspoc/pkg/logger"
	"github.com/julianshen/twspoc/pkg/metrics"
)

const serviceName = "notifsync"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	syncMetrics := metrics.NewSyncMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"offline":   cfg.Remote.Offline,
		"transport": string(cfg.Push.TransportKind()),
		"instance":  instance.GetID(),
	})
	ctx = logg.WithUserID(ctx, cfg.Remote.UserID)

	tr, err := buildTransport(ctx, cfg, logg, syncMetrics)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap push transport", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		Metrics:  syncMetrics,
		Gatherer: reg,
		Remote:   tr.remote,
		Opener:   tr.opener,
		Pingers:  tr.pingers,
	})
	if err != nil {
		_ = tr.Close()
		logg.Error(ctx, "failed to create notifsync service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting notifsync")
	runErr := service.Run(ctx)

	if err := tr.Close(); err != nil {
		logg.Error(ctx, "error closing push transport", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "notifsync stopped unexpectedly", runErr)
		os.Exit(1)
	}

	logg.Info(ctx, "notifsync shutting down gracefully")
}
