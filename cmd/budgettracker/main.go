package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgettracker/internal/amqp"
	"budgettracker/internal/auth"
	"budgettracker/internal/cache"
	"budgettracker/internal/cli"
	"budgettracker/internal/core"
	"budgettracker/internal/currency"
	apphttp "budgettracker/internal/http"
	applog "budgettracker/internal/log"
	"budgettracker/internal/middleware/ratelimit"
	"budgettracker/internal/rates"
	"budgettracker/internal/services"
	"budgettracker/internal/stats"
)

const (
	statsCacheSize     = 1000
	statsCacheTTL      = 5 * time.Minute
	cacheCleanupPeriod = time.Minute
	shutdownTimeout    = 30 * time.Second
	publishTimeout     = 5 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	result := cli.InitBackend(context.Background(), logger, cfg)

	// Validate already rejected unknown policies.
	policy, _ := currency.ParsePolicy(cfg.ConversionPolicy)
	converter := currency.Converter{Policy: policy, Logger: logger.WithComponent(applog.ComponentRates).Logger}
	base := core.Currency(cfg.RatesBaseCurrency)

	rateCache := rates.NewCache(result.Snapshots, rates.WithTTL(cfg.RatesCacheTTL))
	if err := rateCache.Load(context.Background()); err != nil {
		logger.Warn("Failed to load cached exchange rates", applog.FieldError, err)
	}
	fetchClient := &http.Client{Timeout: cfg.RatesFetchTimeout}
	provider := rates.NewProvider(rates.ProviderConfig{
		Sources: []rates.Source{
			rates.NewHTTPSource("primary", cfg.RatesPrimaryURL, fetchClient),
			rates.NewHTTPSource("secondary", cfg.RatesSecondaryURL, fetchClient),
		},
		Cache:           rateCache,
		RefreshInterval: cfg.RatesRefreshInterval,
		FetchTimeout:    cfg.RatesFetchTimeout,
		Logger:          logger.WithComponent(applog.ComponentRates).Logger,
	})

	var (
		events     services.EventPublisher = services.NopPublisher{}
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		events = amqpClient
		unsubscribe := provider.Subscribe(rates.LatestOnly(func(res rates.Result) {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			ev := amqp.RatesUpdated{Snapshot: res.Snapshot, Provenance: res.Provenance}
			if err := amqpClient.PublishRatesUpdated(ctx, ev); err != nil {
				logger.Warn("Failed to publish rates update", applog.FieldError, err)
			}
		}))
		defer unsubscribe()
		logger.Info("AMQP event publishing enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	settings := services.NewSettingsService(result.Store, logger.WithComponent(applog.ComponentSettings).Logger)
	transactions := services.NewTransactionService(result.Store, events, settings, logger)
	statsCache := cache.NewLRUCache[any](statsCacheSize, statsCacheTTL)
	statsService := services.NewStatsService(result.Store, settings, provider, stats.NewEngine(converter), statsCache)
	transactions.OnChange(statsService.Invalidate)
	settings.OnChange(statsService.Invalidate)

	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	cacheManager.Register(statsCache)
	cacheManager.StartCleanup(cacheCleanupPeriod)

	authService := auth.NewService(result.Store,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithLogger(logger.WithComponent(applog.ComponentAuth).Logger))

	rateLimit := ratelimit.DefaultConfig()
	rateLimit.RequestsPerMinute = cfg.RateLimitPerMinute

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:         authService,
		Transactions: transactions,
		Settings:     settings,
		Stats:        statsService,
		Rates:        provider,
		Converter:    converter,
		BaseCurrency: base,
		Store:        result.Store,
		Logger:       logger,
	}, apphttp.WithRateLimit(rateLimit))

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := provider.Stop(shutdownCtx); err != nil {
			logger.Warn("Rate refresh did not stop cleanly", applog.FieldError, err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", applog.FieldError, err)
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Failed to close storage backend", applog.FieldError, err)
			}
		}
	})

	provider.Start(ctx, base)

	logger.Info("Starting budgettracker server", "port", cfg.Port, "backend", cfg.DataBackend, "policy", policy.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
