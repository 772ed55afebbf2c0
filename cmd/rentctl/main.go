package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-rent/cmd/rentctl/cli"
	"github.com/odyssey-erp/odyssey-rent/internal/app"
	"github.com/odyssey-erp/odyssey-rent/internal/billing/postgres"
	"github.com/odyssey-erp/odyssey-rent/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cli.Execute(ctx, cli.Deps{
		Logger: logger,
		Queue: func() (cli.Queue, error) {
			return cli.NewJobsCLI(cfg.RedisAddr)
		},
		Ledger: func(ctx context.Context) (jobs.UnbalancedLister, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
			if err != nil {
				return nil, nil, err
			}
			return postgres.New(pool).Ledger(), pool.Close, nil
		},
	})
}
