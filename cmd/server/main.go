package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/lalith-99/crmhub/internal/api"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/authz"
	"github.com/lalith-99/crmhub/internal/cache"
	"github.com/lalith-99/crmhub/internal/config"
	"github.com/lalith-99/crmhub/internal/db"
	"github.com/lalith-99/crmhub/internal/events"
	"github.com/lalith-99/crmhub/internal/jobs"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/observ"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/lalith-99/crmhub/internal/repository/memory"
	"github.com/lalith-99/crmhub/internal/repository/postgres"
	"github.com/lalith-99/crmhub/internal/service"
	"github.com/lalith-99/crmhub/internal/tenancy"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// 2. Entity store
	// ---------------------------------------------------------------
	var (
		store  *repository.Store
		health func(context.Context) error
	)
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		store = memory.New()
	default:
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if cfg.MigrateOnStart {
			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		pool := database.Pool()
		if err := postgres.NewRoleStore(pool).Sync(ctx, models.DefaultRoles()); err != nil {
			return fmt.Errorf("sync roles: %w", err)
		}
		store = postgres.New(pool)
		health = database.Health
	}

	// ---------------------------------------------------------------
	// 3. Redis (optional): tenant cache, event fan-out, rate limits
	// ---------------------------------------------------------------
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	var tenantCache tenancy.Cache
	if redisClient != nil {
		tenantCache = cache.NewTenantCache(redisClient, cfg.TenantCacheTTL, logger)
	}
	resolver := tenancy.NewResolver(store.Tenants, tenantCache, cfg.TenantHeaderOnLocal, logger)
	policy := tenancy.Policy{AllowLocalWithoutTenant: cfg.AllowLocalWithoutTenant && !cfg.IsProduction()}

	hub := events.NewHub(cfg.CORSOrigins, logger)
	var publisher events.Publisher = hub
	if redisClient != nil {
		bridge := events.NewRedisBridge(redisClient, hub, logger)
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("event relay stopped", zap.Error(err))
			}
		}()
	}

	// ---------------------------------------------------------------
	// 4. Services
	// ---------------------------------------------------------------
	sessions := auth.NewService(store, policy, cfg.JWTSecret, cfg.JWTTTL, logger)
	gate, err := authz.NewGate(ctx, store.Roles, logger)
	if err != nil {
		return fmt.Errorf("load permission policy: %w", err)
	}
	services := service.New(service.Deps{
		Store:   store,
		Events:  publisher,
		Tenants: resolver,
		Logger:  logger,
	})

	loginLimit, err := middleware.RateLimit(cfg.LoginRateLimit, redisClient, logger)
	if err != nil {
		return fmt.Errorf("login rate limit: %w", err)
	}

	scheduler, err := jobs.NewScheduler(cfg.TrialCheckSchedule, services.Tenants, logger)
	if err != nil {
		return err
	}
	scheduler.Start()

	// ---------------------------------------------------------------
	// 5. HTTP server
	// ---------------------------------------------------------------
	router := api.NewRouter(api.RouterDeps{
		Services:       services,
		Sessions:       sessions,
		Policy:         policy,
		Resolver:       resolver,
		Gate:           gate,
		Hub:            hub,
		Logger:         logger,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		LoginLimit:     loginLimit,
		Health:         health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting crmhub",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("redis", redisClient != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
