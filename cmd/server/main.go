package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/integrations/internal/adapter/httpserver"
	"github.com/pscheid92/integrations/internal/adapter/metrics"
	"github.com/pscheid92/integrations/internal/adapter/postgres"
	"github.com/pscheid92/integrations/internal/adapter/redis"
	"github.com/pscheid92/integrations/internal/app"
	"github.com/pscheid92/integrations/internal/domain"
	"github.com/pscheid92/integrations/internal/oauth"
	"github.com/pscheid92/integrations/internal/platform/config"
	"github.com/pscheid92/integrations/internal/platform/crypto"
	"github.com/pscheid92/integrations/internal/platform/logging"
	"github.com/pscheid92/integrations/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const startupTimeout = 30 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupCipher(cfg *config.Config) *crypto.Cipher {
	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		slog.Error("Failed to create cipher", "error", err)
		os.Exit(1)
	}
	if err := cipher.SelfTest(); err != nil {
		slog.Error("Cipher self-test failed", "error", err)
		os.Exit(1)
	}
	return cipher
}

func setupDB(ctx context.Context, cfg *config.Config, storageMetrics *metrics.StorageMetrics) *pgxpool.Pool {
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.WithQueryObserver(storageMetrics))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, storageMetrics *metrics.StorageMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, OAuth state replay protection disabled")
		return nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL, storageMetrics)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupProviders(cfg *config.Config) *oauth.Registry {
	var providers []oauth.Provider
	if cfg.Vercel.Enabled() {
		providers = append(providers, oauth.NewVercel(oauth.VercelConfig{
			ClientID:        cfg.Vercel.ClientID,
			ClientSecret:    cfg.Vercel.ClientSecret,
			IntegrationSlug: cfg.Vercel.IntegrationSlug,
		}))
	}
	if cfg.Webflow.Enabled() {
		providers = append(providers, oauth.NewWebflow(oauth.WebflowConfig{
			ClientID:     cfg.Webflow.ClientID,
			ClientSecret: cfg.Webflow.ClientSecret,
			Scopes:       oauth.ParseScopes(cfg.Webflow.Scopes),
		}))
	}

	registry := oauth.NewRegistry(providers...)
	if len(registry.Names()) == 0 {
		slog.Warn("No OAuth providers configured, only health endpoints are useful")
	}
	return registry
}

// buildIntegrations wires one token store and callback controller per
// configured provider.
func buildIntegrations(cfg *config.Config, registry *oauth.Registry, stores app.TokenStores, sessions domain.SessionProvider, guard app.StateGuard, recorder app.Recorder) map[domain.Provider]httpserver.Integration {
	integrations := make(map[domain.Provider]httpserver.Integration)
	for _, name := range registry.Names() {
		provider, _ := registry.Get(name)
		store, err := stores.Get(name)
		if err != nil {
			slog.Error("No token store for provider", "provider", name, "error", err)
			os.Exit(1)
		}

		controller := app.NewCallbackController(provider, store, sessions, guard, app.CallbackConfig{
			SuccessURL:  cfg.SuccessURL,
			ErrorURL:    cfg.ErrorURL,
			RedirectURI: cfg.CallbackURL(name.String()),
		}, recorder)

		integrations[name] = httpserver.Integration{
			Provider: provider,
			Tokens:   store,
			Callback: controller,
		}
		slog.Info("Provider enabled", "provider", name, "state_required", provider.StateRequired())
	}
	return integrations
}

func runGracefulShutdown(srv *httpserver.Server, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, draining requests...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", append(version.Get().LogArgs(), "env", cfg.AppEnv, "port", cfg.Port)...)

	cipher := setupCipher(cfg)

	reg := metrics.NewRegistry()
	storageMetrics := metrics.NewStorageMetrics(reg)
	integrationMetrics := metrics.NewIntegrationMetrics(reg)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	pool := setupDB(ctx, cfg, storageMetrics)
	defer pool.Close()

	redisClient := setupRedis(ctx, cfg, storageMetrics)
	cancel()

	// guard stays a nil interface when Redis is not configured.
	var guard app.StateGuard
	healthChecks := []httpserver.HealthCheck{{Name: "postgres", Check: pool.Ping}}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		guard = redis.NewStateGuard(redisClient)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	registry := setupProviders(cfg)
	repo := postgres.NewIntegrationRepo(pool)
	stores := app.NewTokenStores(repo, cipher, clock, integrationMetrics, registry.Names()...)
	sessions := httpserver.NewCookieSessions(cfg.SessionSecret, cfg.SessionName, cfg.IsProduction())

	integrations := buildIntegrations(cfg, registry, stores, sessions, guard, integrationMetrics)
	srv := httpserver.NewServer(cfg, integrations, sessions, reg, healthChecks)

	done := runGracefulShutdown(srv, cfg.ShutdownTimeout)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Server stopped")
}
