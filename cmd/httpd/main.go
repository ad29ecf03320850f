package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/veritas/internal/api"
	"github.com/jonesrussell/north-cloud/veritas/internal/cache"
	"github.com/jonesrussell/north-cloud/veritas/internal/config"
	"github.com/jonesrussell/north-cloud/veritas/internal/credentials"
	"github.com/jonesrussell/north-cloud/veritas/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/veritas/internal/extractor"
	"github.com/jonesrussell/north-cloud/veritas/internal/handler"
	"github.com/jonesrussell/north-cloud/veritas/internal/heuristic"
	"github.com/jonesrussell/north-cloud/veritas/internal/llm"
	"github.com/jonesrussell/north-cloud/veritas/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/veritas/internal/presenter"
	"github.com/jonesrussell/north-cloud/veritas/internal/settings"
	"github.com/jonesrussell/north-cloud/veritas/internal/telemetry"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/circuitbreaker"
	infraconfig "github.com/jonesrussell/north-cloud/veritas/infrastructure/config"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/veritas/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/sse"
)

// startupTimeout bounds Redis and SQLite connection at start-up.
const startupTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Initialize logger
	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to Redis (optional)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = connectRedis(ctx, cfg, log)
		if err != nil {
			log.Error("Failed to connect to Redis", logger.Error(err))
			return 1
		}
		defer func() { _ = redisClient.Close() }()
	}

	return runServer(ctx, cfg, log, redisClient)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := infraconfig.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(cfg.Logging.LoggerConfig(cfg.Service.Debug))
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// connectRedis connects with retries so the service survives Redis starting late.
func connectRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	client, err := infraredis.Connect(connectCtx, cfg.Redis.Config, retry.DefaultConfig(), log)
	if err != nil {
		return nil, err
	}

	log.Info("Redis connected",
		logger.String("address", cfg.Redis.Address),
		logger.Int("db", cfg.Redis.DB),
	)
	return client, nil
}

// openCacheStore selects the result cache backend.
func openCacheStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (cache.Store, func(), error) {
	switch cfg.Cache.Driver {
	case config.CacheDriverRedis:
		return cache.NewRedisStore(redisClient, cfg.Cache.RedisPrefix), func() {}, nil
	case config.CacheDriverSQLite:
		openCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()

		store, err := cache.OpenSQLite(openCtx, cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return cache.NewMemoryStore(), func() {}, nil
	}
}

// openSettingsStore uses Redis when available so the popup and every
// instance share settings. A configured key seeds an empty store.
func openSettingsStore(
	ctx context.Context,
	cfg *config.Config,
	redisClient *redis.Client,
	log logger.Logger,
) (settings.Store, error) {
	var store settings.Store
	if redisClient != nil {
		store = settings.NewRedisStore(redisClient, cfg.Settings.HashKey, cfg.Settings.Channel, log)
	} else {
		store = settings.NewMemoryStore(settings.Defaults())
	}

	if cfg.Credentials.APIKey == "" {
		return store, nil
	}

	current, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if current.APIKey == "" {
		current.APIKey = cfg.Credentials.APIKey
		if err = store.Save(ctx, current); err != nil {
			return nil, fmt.Errorf("seed api key: %w", err)
		}
	}
	return store, nil
}

// newCredentials builds the provider that turns API keys into remote clients.
func newCredentials(cfg *config.Config, log logger.Logger, tp *telemetry.Provider) *credentials.Provider {
	limiter := rate.NewLimiter(rate.Limit(cfg.Remote.RequestsPerSec), cfg.Remote.Burst)
	remoteLog := log.With(logger.String("component", "remote"))

	factory := func(apiKey string) credentials.RemoteAnalyzer {
		return llm.NewClient(apiKey,
			llm.WithEndpoint(cfg.Remote.Endpoint),
			llm.WithModel(cfg.Remote.Model),
			llm.WithSampling(cfg.Remote.Temperature, cfg.Remote.MaxTokens),
			llm.WithMaxContentChars(cfg.Remote.MaxContentChars),
			llm.WithLimiter(limiter),
			llm.WithLogger(remoteLog),
		)
	}

	opts := []credentials.Option{credentials.WithTelemetry(tp)}
	if cfg.Credentials.Breaker.Enabled {
		opts = append(opts, credentials.WithBreaker(circuitbreaker.Config{
			FailureThreshold: cfg.Credentials.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Credentials.Breaker.SuccessThreshold,
			Timeout:          cfg.Credentials.Breaker.Timeout,
		}))
	}
	return credentials.NewProvider(factory, log, opts...)
}

// runServer creates all dependencies and starts the HTTP server.
func runServer(ctx context.Context, cfg *config.Config, log logger.Logger, redisClient *redis.Client) int {
	tp := telemetry.NewProvider(nil)

	cacheStore, closeCache, err := openCacheStore(ctx, cfg, redisClient)
	if err != nil {
		log.Error("Failed to open cache", logger.Error(err))
		return 1
	}
	defer closeCache()

	settingsStore, err := openSettingsStore(ctx, cfg, redisClient, log)
	if err != nil {
		log.Error("Failed to open settings", logger.Error(err))
		return 1
	}

	// SSE broker
	broker := sse.NewBroker(log, sse.WithConfig(cfg.SSE.BrokerConfig()))
	if err = broker.Start(ctx); err != nil {
		log.Error("Failed to start SSE broker", logger.Error(err))
		return 1
	}

	creds := newCredentials(cfg, log, tp)
	orch := orchestrator.New(
		cfg.Orchestrator.OrchestratorLimits(),
		heuristic.NewAnalyzer(log, heuristic.WithConfig(cfg.Heuristic.HeuristicRules())),
		cache.NewResultCache(cacheStore, cfg.Cache.TTL, log, tp),
		creds,
		presenter.NewSSE(broker, log),
		log,
		orchestrator.WithExtractor(extractor.New()),
		orchestrator.WithTelemetry(tp),
	)
	defer orch.Wait()

	d := dispatcher.New(orch, settingsStore, creds, cfg.Credentials.KeyPrefix, cfg.Orchestrator.MinContentLength, log)
	if err = d.Start(ctx); err != nil {
		log.Error("Failed to start dispatcher", logger.Error(err))
		return 1
	}

	var redisPing func() error
	if redisClient != nil {
		redisPing = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return redisClient.Ping(pingCtx).Err()
		}
	}

	server := api.NewServer(api.Handlers{
		Messages: handler.NewMessageHandler(d, log),
		Settings: handler.NewSettingsHandler(d, log),
		Events:   broker,
		Metrics:  tp.Handler(),
	}, cfg, log, redisPing)

	log.Info("Veritas starting",
		logger.Int("port", cfg.Service.Port),
		logger.String("cache_driver", cfg.Cache.Driver),
		logger.Bool("redis", redisClient != nil),
		logger.Bool("api_key_configured", creds.Configured()),
	)

	if err = server.RunWithGracefulShutdown(ctx); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Veritas exited cleanly")
	return 0
}
