package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tripsplit/internal/amqp"
	"tripsplit/internal/cache"
	"tripsplit/internal/cli"
	apphttp "tripsplit/internal/http"
	"tripsplit/internal/log"
	"tripsplit/internal/services"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		slog.Error("tripsplit exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	app, err := cli.Bootstrap(context.Background())
	if err != nil {
		return err
	}
	defer app.Close()

	cfg, logger := app.Config, app.Logger
	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	logger.Info("Starting tripsplit",
		log.FieldOperation, log.OpStartup,
		"backend", cfg.DataBackend,
		log.FieldAccounting, cfg.AccountingCurrency)

	var opts []services.Option
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			defer client.Close()
			opts = append(opts, services.WithPublisher(client))
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	svc, balances := app.NewExpenseService(opts...)

	caches := cache.NewManager(logger)
	caches.Register(balances)
	caches.Start(ctx, time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, svc,
		apphttp.WithLogger(logger),
		apphttp.WithRateLimit(cfg.RateLimitPerMin),
		apphttp.WithReadiness(func(ctx context.Context) error {
			if p, ok := app.Store.(pinger); ok {
				return p.Ping(ctx)
			}
			return nil
		}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Warm the rate table; a failure only means the first conversion refreshes.
		if err := svc.RefreshRates(gctx); err != nil {
			logger.Warn("Initial rate refresh failed", log.FieldError, err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
