// Package cli provides the bootstrap shared by cmd/tripsplit,
// cmd/tripsplit-worker and cmd/tripctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tripsplit/internal/backend"
	"tripsplit/internal/cache"
	"tripsplit/internal/config"
	"tripsplit/internal/log"
	"tripsplit/internal/ports"
	"tripsplit/internal/rates"
	"tripsplit/internal/services"
)

// App bundles the configured dependencies every binary starts from.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Store     ports.Store
	Converter *rates.Converter

	cleanup backend.CleanupFunc
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger installs a text logger at the given LOG_LEVEL as the process
// default.
func SetupLogger(level string) *log.Logger {
	logger := log.New(log.Config{Level: log.ParseLevel(level), Component: log.ComponentApp})
	log.SetDefault(logger)
	return logger
}

// Bootstrap loads .env and configuration, then opens the configured store
// and rate converter.
func Bootstrap(ctx context.Context) (*App, error) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewApp(ctx, cfg, logger)
}

// NewApp wires an App from an already validated config.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     res.Store,
		Converter: NewConverter(cfg, res.Store, logger),
		cleanup:   res.Cleanup,
	}, nil
}

// NewConverter builds the rate cache and converter. Without an API key the
// converter serves stored rates only.
func NewConverter(cfg *config.Config, store ports.RateStore, logger *log.Logger) *rates.Converter {
	var provider rates.Provider
	if cfg.RateProviderAPIKey != "" {
		provider = rates.NewHTTPProvider(cfg.RateProviderURL, cfg.RateProviderAPIKey, cfg.RateProviderTimeout)
	} else {
		logger.Warn("RATE_PROVIDER_API_KEY not set, only stored exchange rates are available")
	}
	return rates.NewConverter(rates.NewCache(store, provider, cfg.AccountingCurrency,
		rates.WithMaxAge(cfg.RateMaxAge),
		rates.WithLogger(logger)))
}

// NewExpenseService creates the service on top of the App's store with a
// balance cache sized from config. The cache is returned so callers can
// register it for periodic cleanup.
func (a *App) NewExpenseService(opts ...services.Option) (*services.ExpenseService, *cache.LRUCache[services.Balances]) {
	balances := cache.NewLRUCache[services.Balances](a.Config.BalanceCacheSize, a.Config.BalanceCacheTTL)
	opts = append([]services.Option{
		services.WithBalanceCache(balances),
		services.WithLogger(a.Logger),
	}, opts...)
	return services.NewExpenseService(a.Store, a.Converter, opts...), balances
}

// Close releases the store.
func (a *App) Close() error {
	if a.cleanup == nil {
		return nil
	}
	return a.cleanup()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// IgnoreCanceled maps context cancellation to a clean exit.
func IgnoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
