package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/businessweb01/dbmiddleware/internal/config"
	"github.com/businessweb01/dbmiddleware/internal/handler"
	"github.com/businessweb01/dbmiddleware/internal/infra/postgresql"
	"github.com/businessweb01/dbmiddleware/internal/infra/postgresql/migrations"
	infraredis "github.com/businessweb01/dbmiddleware/internal/infra/redis"
	"github.com/businessweb01/dbmiddleware/internal/observability"
	"github.com/businessweb01/dbmiddleware/internal/relay"
	"github.com/businessweb01/dbmiddleware/internal/repository"
	"github.com/businessweb01/dbmiddleware/internal/sink"
	"github.com/businessweb01/dbmiddleware/internal/source"
	"github.com/businessweb01/dbmiddleware/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	attempts, auditDB, err := buildAuditLog(cfg, logger)
	if err != nil {
		logger.Fatal("audit database initialization failed", zap.Error(err))
	}
	if auditDB != nil {
		defer auditDB.Close()
	}

	store, err := source.NewStore(rdb, logger)
	if err != nil {
		logger.Fatal("source store initialization failed", zap.Error(err))
	}

	watcher, err := source.NewWatcher(rdb, logger)
	if err != nil {
		logger.Fatal("source watcher initialization failed", zap.Error(err))
	}

	mutator, err := source.NewMutator(store, cfg.DeleteEnabled(), logger)
	if err != nil {
		logger.Fatal("source mutator initialization failed", zap.Error(err))
	}

	client, err := sink.NewClient(cfg.SinkURL, time.Duration(cfg.SinkTimeoutSeconds)*time.Second, cfg.MaxRetries, logger)
	if err != nil {
		logger.Fatal("sink client initialization failed", zap.Error(err))
	}
	client.SetAttemptRecorder(attempts)

	metrics := observability.NewMetrics()

	cache := relay.NewDedupCache(cfg.CacheMaxEntries, time.Duration(cfg.CacheEvictSeconds)*time.Second, logger)
	cache.SetMetrics(metrics)

	supervisor, err := relay.NewSupervisor(watcher, logger)
	if err != nil {
		logger.Fatal("supervisor initialization failed", zap.Error(err))
	}
	supervisor.SetMetrics(metrics)

	orch, err := relay.NewOrchestrator(store, client, mutator, cache, relay.NewStats(), supervisor, logger)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}
	orch.SetMetrics(metrics)
	orch.SetDeleteEnabled(cfg.DeleteEnabled())

	if cfg.RateLimitPerSec > 0 {
		limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			logger.Fatal("rate limiter initialization failed", zap.Error(err))
		}
		orch.SetRateLimiter(limiter)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterStatusRoutes(app, orch, store, auditDB)

	logger.Info("booking relay started",
		zap.Int("port", cfg.APIPort),
		zap.Bool("deleteEnabled", cfg.DeleteEnabled()),
		zap.Int("maxRetries", cfg.MaxRetries),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return orch.Run(gctx)
	})
	g.Go(func() error {
		return cache.RunEviction(gctx)
	})
	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay stopped with error", zap.Error(err))
		return
	}
	logger.Info("relay stopped")
}

// buildAuditLog wires the optional delivery attempt audit trail. With no DSN
// configured attempts are simply not persisted.
func buildAuditLog(cfg *config.Config, logger *zap.Logger) (sink.AttemptRecorder, *sql.DB, error) {
	if cfg.AuditDatabaseDSN == "" {
		logger.Info("delivery attempt audit log disabled")
		return repository.NoopAttemptRepo{}, nil, nil
	}

	db, err := postgresql.NewPostgres(cfg.AuditDatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Migrate(db); err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return repository.NewGormAttemptRepo(db), sqlDB, nil
}
