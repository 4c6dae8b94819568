package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/popeskul/chatrelay/internal/allowlist"
	"github.com/popeskul/chatrelay/internal/autoreply"
	"github.com/popeskul/chatrelay/internal/backoff"
	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/dispatcher"
	"github.com/popeskul/chatrelay/internal/events"
	"github.com/popeskul/chatrelay/internal/gateway"
	"github.com/popeskul/chatrelay/internal/handler"
	"github.com/popeskul/chatrelay/internal/infrastructure/migrate"
	"github.com/popeskul/chatrelay/internal/lease"
	"github.com/popeskul/chatrelay/internal/middleware"
	"github.com/popeskul/chatrelay/internal/repository"
	"github.com/popeskul/chatrelay/internal/repository/memory"
	"github.com/popeskul/chatrelay/internal/service"
)

const shutdownTimeout = 10 * time.Second

// run wires the engine and blocks until ctx is cancelled or the HTTP server
// fails.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	repo, closeRepo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Failed to close Redis connection", zap.Error(err))
			}
		}()
	}

	publisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}()

	var (
		locker   lease.Locker = lease.NewLocalLocker()
		cooldown autoreply.Cooldown
		cache    service.ProviderIDCache
	)
	if redisClient != nil {
		locker = lease.NewRedisLocker(redisClient, cfg.Dispatcher.LeaseDuration())
		if cfg.AutoReply.SenderCooldown > 0 {
			cooldown = autoreply.NewRedisCooldown(redisClient, cfg.AutoReply.CooldownDuration())
		}
		cache = service.NewRedisProviderCache(redisClient)
	}

	client := gateway.NewHTTPClient(cfg.Gateway, logger)
	limiter := backoff.NewController(cfg.Backoff, repo.Instance(), logger)
	queue := service.NewQueueService(cfg.Queue, repo, cache, publisher, logger)

	manager := dispatcher.NewManager(cfg, dispatcher.Deps{
		Instances: repo.Instance(),
		Queue:     queue,
		Client:    client,
		Guard:     allowlist.NewGuard(cfg.AllowList, client, logger),
		Limiter:   limiter,
		Locker:    locker,
		Publisher: publisher,
	}, logger)

	svc := service.NewService(cfg, service.Dependencies{
		Repo:        repo,
		RedisClient: redisClient,
		Queue:       queue,
		Publisher:   publisher,
		Replies:     autoreply.NewEngine(cfg.AutoReply, cooldown, logger),
		Limiter:     limiter,
		Dispatcher:  manager,
	}, logger)

	router := setupRouter(handler.NewHandler(svc, cfg.Webhook.Secret, logger))
	chain := middleware.Chain(ctx, &middleware.Config{
		Logger:          logger,
		RateLimit:       rate.Limit(cfg.Middleware.RateLimit),
		RateLimitBurst:  cfg.Middleware.RateLimitBurst,
		RateLimitExempt: []string{"/webhooks/", "/health"},
		RequestTimeout:  cfg.Middleware.RequestTimeoutDuration(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      chain(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	if err := svc.Recovery.Start(ctx); err != nil {
		_ = manager.Stop()
		return fmt.Errorf("failed to start recovery sweep: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := svc.Recovery.Stop(); err != nil {
			logger.Warn("Failed to stop recovery sweep", zap.Error(err))
		}
		if err := manager.Stop(); err != nil {
			logger.Warn("Failed to stop dispatcher", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server exited")
	return err
}

// openRepository returns the configured store and a function releasing it.
func openRepository(cfg *config.Config, logger *zap.Logger) (repository.Repository, func(), error) {
	if cfg.Database.Driver == "memory" {
		store := memory.NewStore()
		seedMemory(store, cfg.Seed)
		logger.Warn("Using in-memory store; state is lost on restart",
			zap.Int("instances", len(cfg.Seed.Instances)),
			zap.Int("rules", len(cfg.Seed.Rules)))
		return store, func() {}, nil
	}

	if cfg.Database.AutoMigrate {
		runner := migrate.NewRunner(&migrate.Config{
			DatabaseURL:    cfg.Database.GetDSN(),
			MigrationsPath: cfg.Database.MigrationsPath,
		}, logger)
		if err := runner.Run(); err != nil {
			return nil, nil, err
		}
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return repository.NewRepository(db), func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}, nil
}

func newPublisher(cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.NewLogPublisher(logger), nil
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event broker: %w", err)
	}
	return p, nil
}
