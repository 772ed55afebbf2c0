package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rent/internal/app"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/calendar"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/charges"
	billinghttp "github.com/odyssey-erp/odyssey-rent/internal/billing/http"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/invoices"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/ledger"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/payments"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/policy"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/postgres"
	"github.com/odyssey-erp/odyssey-rent/internal/observability"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/blob"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/events"
	"github.com/odyssey-erp/odyssey-rent/internal/shared"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		}()
		publisher = kafkaPublisher
	}

	reconcilerOpts := []payments.Option{
		payments.WithPublisher(publisher),
		payments.WithTimeout(cfg.BillingEventTimeout),
	}
	if cfg.BlobEnabled() {
		archive, err := blob.New(ctx, blob.Options{
			Bucket:          cfg.BlobBucket,
			Region:          cfg.BlobRegion,
			Endpoint:        cfg.BlobEndpoint,
			AccessKeyID:     cfg.BlobAccessKeyID,
			SecretAccessKey: cfg.BlobSecretAccessKey,
		})
		if err != nil {
			logger.Error("init blob store", slog.Any("error", err))
			os.Exit(1)
		}
		reconcilerOpts = append(reconcilerOpts, payments.WithRecorder(archive))
	}

	clock := calendar.SystemClock{}
	store := postgres.New(dbpool)
	metrics := observability.NewMetrics()

	billingHandler := billinghttp.NewHandler(logger, billinghttp.Services{
		Engine:     invoices.NewEngine(store, clock, logger, invoices.WithPublisher(publisher), invoices.WithTimeout(cfg.BillingTickTimeout)),
		Invoices:   invoices.NewQuery(store, clock),
		Charges:    charges.NewService(store, clock, logger),
		Policies:   policy.NewService(store, clock, logger),
		Ledger:     ledger.NewService(store),
		Reconciler: payments.NewReconciler(store, clock, logger, reconcilerOpts...),
	},
		billinghttp.WithDeduper(shared.NewWebhookDeduper(redisClient, 0)),
		billinghttp.WithWebhookSecret(cfg.GatewayWebhookSecret),
		billinghttp.WithMetrics(metrics.Jobs()),
	)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: billingHandler,
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Checks: map[string]app.Pinger{
			"postgres": dbpool,
			"redis": app.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
