// Command konsensus runs the consensus engine: it loads the YAML
// configuration, opens the SQLite store, wires the reputation client with
// its resilience middleware, seeds any configured topics, and runs the
// recomputation scheduler until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Rejean-McCormick/konsensus/infrastructure/middleware"
	"github.com/Rejean-McCormick/konsensus/infrastructure/moderation"
	"github.com/Rejean-McCormick/konsensus/infrastructure/reputation"
	"github.com/Rejean-McCormick/konsensus/infrastructure/store"
	"github.com/Rejean-McCormick/konsensus/internal/application"
	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

func main() {
	configPath := flag.String("config", "konsensus.yaml", "Path to the engine configuration file")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("engine exited")
	}
}

func run(configPath string, logger zerolog.Logger) error {
	config, err := application.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(config.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	metrics := middleware.NewPrometheusMetrics()

	reputationClient, err := buildReputationClient(ctx, config.Reputation, metrics)
	if err != nil {
		return err
	}

	moderationClient := moderation.NewClient(
		config.Moderation.BaseURL,
		config.Moderation.APIKey,
		time.Duration(config.Moderation.TimeoutMS)*time.Millisecond,
	)

	defaults := domain.DefaultTopicConfig()
	if config.Defaults != nil {
		defaults = *config.Defaults
	}

	topics := store.NewTopicRepo(db)
	engine, err := application.NewEngine(application.EngineParams{
		Topics:      topics,
		Stances:     store.NewStanceRepo(db),
		Results:     store.NewResultRepo(db),
		Audit:       store.NewAuditRepo(db),
		Reputation:  reputationClient,
		Moderation:  moderationClient,
		Metrics:     metrics,
		Observer:    middleware.NewOTelRunObserver(metrics),
		Logger:      logger,
		Defaults:    defaults,
		Pipeline:    config.Pipeline,
		BatchWindow: time.Duration(config.Scheduler.BatchWindowMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	if err := seedTopics(ctx, engine, topics, config, defaults, logger); err != nil {
		return err
	}

	if config.MetricsAddr != "" {
		go serveMetrics(ctx, config.MetricsAddr, logger)
	}

	logger.Info().Str("db", config.Storage.SQLitePath).Msg("consensus engine started")
	engine.Start(ctx)
	return nil
}

func buildReputationClient(ctx context.Context, config application.ReputationConfig, metrics ports.MetricsCollector) (*reputation.Client, error) {
	provider := reputation.NewHTTPProvider(
		config.BaseURL,
		config.APIKey,
		time.Duration(config.TimeoutMS)*time.Millisecond,
	)

	// Outermost first: metrics see every lookup, the rate limiter brakes
	// before retries multiply load, and retries wrap the breaker so an
	// open circuit short-circuits the backoff loop.
	var chain []reputation.Middleware
	chain = append(chain, reputation.MetricsMiddleware(metrics))
	if config.RateLimit > 0 {
		chain = append(chain, reputation.RateLimitMiddleware(rate.Limit(config.RateLimit), config.Burst))
	}
	if config.MaxRetries > 0 {
		chain = append(chain, reputation.RetryMiddleware(
			config.MaxRetries,
			time.Duration(config.InitialWaitMS)*time.Millisecond,
			time.Duration(config.MaxWaitMS)*time.Millisecond,
		))
	}
	if config.MaxFailures > 0 {
		chain = append(chain, reputation.CircuitBreakerMiddleware(
			config.MaxFailures,
			time.Duration(config.CooldownMS)*time.Millisecond,
		))
	}

	var cache reputation.CacheStore
	if config.RedisURL != "" {
		redisCache, err := reputation.NewRedisCacheFromURL(ctx, config.RedisURL)
		if err != nil {
			return nil, err
		}
		cache = redisCache
	} else {
		cache = reputation.NewMemoryCache()
	}

	return reputation.NewClient(reputation.ClientConfig{
		Provider:   provider,
		Middleware: chain,
		Cache:      cache,
		CacheTTL:   time.Duration(config.CacheTTLMS) * time.Millisecond,
	})
}

func seedTopics(
	ctx context.Context,
	engine *application.Engine,
	topics ports.TopicStore,
	config application.EngineConfig,
	defaults domain.TopicConfig,
	logger zerolog.Logger,
) error {
	for _, seed := range config.Topics {
		if _, err := topics.Get(ctx, seed.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrTopicNotFound) {
			return err
		}
		if _, err := engine.CreateTopic(ctx, seed.Topic(defaults, time.Now().UTC()), application.ActorEngine); err != nil {
			return err
		}
		logger.Info().Str("topic", seed.ID).Msg("seeded topic")
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}
