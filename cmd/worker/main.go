package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rent/internal/app"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/invoices"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/postgres"
	"github.com/odyssey-erp/odyssey-rent/internal/observability"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/events"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: int32(cfg.BillingTickConcurrency) + 2})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var publisher events.Publisher = events.Noop{}
	if cfg.KafkaEnabled() {
		publisher = events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close", slog.Any("error", err))
		}
	}()

	store := postgres.New(pool)
	clock := calendar.SystemClock{}
	metrics := observability.NewMetrics().Jobs()

	tickJob := &jobs.InvoiceTickJob{
		Leases:       store.Leases(),
		Engine:       invoices.NewEngine(store, clock, logger, invoices.WithPublisher(publisher)),
		Redis:        redisClient,
		Logger:       logger,
		Metrics:      metrics,
		Concurrency:  cfg.BillingTickConcurrency,
		LeaseTimeout: cfg.BillingTickTimeout,
		Clock:        clock,
	}
	integrityJob := &jobs.GLIntegrityJob{Ledger: store.Ledger(), Redis: redisClient, Logger: logger, Metrics: metrics}

	tickTask, err := jobs.NewBillingTickTask(jobs.BillingTickPayload{ScheduledFor: time.Now().UTC()})
	if err != nil {
		logger.Error("build billing tick task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewGLIntegrityTask(time.Now().UTC())
	if err != nil {
		logger.Error("build gl integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBillingTick, Handler: tickJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BillingTickCron, Task: tickTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.GLIntegrityCron, Task: integrityTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker",
		slog.String("tick_cron", cfg.BillingTickCron),
		slog.Int("concurrency", cfg.BillingTickConcurrency))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
