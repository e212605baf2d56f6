package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"joaogchv/promocollector/api"
	"joaogchv/promocollector/config"
	"joaogchv/promocollector/helpers"
	"joaogchv/promocollector/internal/metrics"
	"joaogchv/promocollector/internal/normalizer"
	"joaogchv/promocollector/internal/pipeline"
	"joaogchv/promocollector/internal/scraper"
	"joaogchv/promocollector/internal/warehouse"
	"joaogchv/promocollector/logger"
	"joaogchv/promocollector/services/cache"
	"joaogchv/promocollector/services/publisher"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Int("sources", len(cfg.Sources)).
		Msg("Starting promotion collector")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Warehouse pool
	pool, err := warehouse.NewPool(ctx, cfg.PostgresDSN, cfg.PgMaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to warehouse")
	}
	defer pool.Close()
	wh := warehouse.New(pool)
	logger.Info("Connected to warehouse")

	// Optional rate-limit guard cache
	var cacheSvc cache.CacheService
	if cfg.MemcacheAddr != "" {
		cacheSvc = cache.NewMemcacheService(cfg.MemcacheAddr)
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	// Optional promotion stream publisher
	var pub publisher.Publisher
	if cfg.RedisAddr != "" {
		pub = publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		defer pub.Close()
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	// Pipeline wiring
	marketplace := scraper.MercadoLivre()
	httpClient := helpers.NewHTTPClient(cfg.RequestTimeout)
	fetcher := scraper.NewFetcher(httpClient, cfg.MaxRetries, cfg.BackoffFactor, cacheSvc, cfg.RateLimitBlockTime)
	extractor := scraper.NewExtractor(marketplace, cfg.ItemsPerSource)
	norm := normalizer.New(marketplace.IDPattern)
	reg := metrics.NewRegistry()

	runner := pipeline.NewRunner(cfg.Sources, fetcher, extractor, norm, wh, pub, reg)

	// HTTP trigger server
	server := api.NewServer(runner, wh, reg)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.ListenAndServe(ctx, cfg.ListenAddr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-serverDone
	case err := <-serverDone:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server exited with error")
		} else {
			log.Info().Msg("HTTP server exited normally")
		}
	}

	log.Info().Msg("Shutting down gracefully...")
}
