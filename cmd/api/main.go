package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/mail-failover/internal/audit"
	"github.com/kursadbilgin/mail-failover/internal/config"
	"github.com/kursadbilgin/mail-failover/internal/counter"
	"github.com/kursadbilgin/mail-failover/internal/handler"
	"github.com/kursadbilgin/mail-failover/internal/infra/postgresql"
	"github.com/kursadbilgin/mail-failover/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/mail-failover/internal/infra/redis"
	"github.com/kursadbilgin/mail-failover/internal/observability"
	"github.com/kursadbilgin/mail-failover/internal/provider"
	"github.com/kursadbilgin/mail-failover/internal/queue"
	"github.com/kursadbilgin/mail-failover/internal/repository"
	"github.com/kursadbilgin/mail-failover/internal/service"
	"github.com/kursadbilgin/mail-failover/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Error("mail-failover stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	checks := map[string]handler.ReadinessCheck{}

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		client, err := infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer client.Close()
		rdb = client
		checks["redis"] = handler.RedisCheck(rdb)
	}

	var db *gorm.DB
	if cfg.DatabaseDSN != "" {
		gdb, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(gdb); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		defer sqlDB.Close()
		db = gdb
		checks["postgres"] = handler.SQLCheck(sqlDB)
	}

	attemptCounter, err := newAttemptCounter(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}

	smtpProvider, err := provider.NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPTimeout)
	if err != nil {
		return fmt.Errorf("smtp provider initialization failed: %w", err)
	}

	auditSink, err := newAuditSink(cfg, db, metrics, checks, logger)
	if err != nil {
		return err
	}
	defer auditSink.Close() //nolint:errcheck

	notifier, err := service.NewNotifier(smtpProvider, cfg.BackupIdentity(), cfg.AdminEmail, auditSink, logger)
	if err != nil {
		return fmt.Errorf("notifier initialization failed: %w", err)
	}
	notifier.SetMetrics(metrics)

	controller, err := service.NewEscalationController(service.ControllerConfig{
		Primary:    cfg.PrimaryIdentity(),
		Backup:     cfg.BackupIdentity(),
		RetryDelay: cfg.RetryDelay,
		Threshold:  cfg.EscalationThreshold,
	}, smtpProvider, attemptCounter, notifier, logger)
	if err != nil {
		return fmt.Errorf("escalation controller initialization failed: %w", err)
	}
	controller.SetMetrics(metrics)
	if db != nil {
		controller.SetAttemptRepository(repository.NewGormAttemptRepo(db))
	}

	app := fiber.New(fiber.Config{
		AppName:               "mail-failover",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, checks)
	if err := handler.RegisterSendRoutes(app, controller, logger); err != nil {
		return fmt.Errorf("failed to register send routes: %w", err)
	}
	if db != nil {
		if err := handler.RegisterEscalationRoutes(app, repository.NewGormEscalationRepo(db)); err != nil {
			return fmt.Errorf("failed to register escalation routes: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("mail-failover api started",
			zap.Int("port", cfg.APIPort),
			zap.String("primary", cfg.PrimaryEmail),
			zap.String("backup", cfg.BackupEmail),
			zap.String("counterBackend", cfg.CounterBackend),
		)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", zap.Error(err))
		}
		if err := controller.Wait(shutdownCtx); err != nil {
			logger.Warn("pending admin notifications abandoned", zap.Error(err))
		}

		logger.Info("mail-failover api stopped")
		return nil
	})

	return g.Wait()
}

func newAttemptCounter(ctx context.Context, cfg *config.Config, rdb *goredis.Client, logger *zap.Logger) (*counter.Counter, error) {
	var store counter.Store
	switch cfg.CounterBackend {
	case config.CounterBackendRedis:
		redisStore, err := infraredis.NewCounterStore(rdb, "")
		if err != nil {
			return nil, fmt.Errorf("redis counter store initialization failed: %w", err)
		}
		store = redisStore
	default:
		fileStore, err := counter.NewFileStore(cfg.CounterFile)
		if err != nil {
			return nil, fmt.Errorf("file counter store initialization failed: %w", err)
		}
		store = fileStore
	}

	c, err := counter.New(store)
	if err != nil {
		return nil, err
	}

	value, err := c.Load(ctx)
	switch {
	case errors.Is(err, counter.ErrNotFound):
		logger.Info("no persisted attempt counter, starting at 0")
	case err != nil:
		logger.Error("failed to read attempt counter, starting at 0", zap.Error(err))
	default:
		logger.Info("attempt counter loaded", zap.Int("attemptCount", value))
	}

	return c, nil
}

func newAuditSink(
	cfg *config.Config,
	db *gorm.DB,
	metrics *observability.Metrics,
	checks map[string]handler.ReadinessCheck,
	logger *zap.Logger,
) (*audit.MultiSink, error) {
	fileSink, err := audit.NewFileSink(cfg.AuditLogFile)
	if err != nil {
		return nil, fmt.Errorf("audit file sink initialization failed: %w", err)
	}
	sinks := []audit.Sink{fileSink}

	if db != nil {
		repoSink, err := audit.NewRepositorySink(repository.NewGormEscalationRepo(db))
		if err != nil {
			return nil, fmt.Errorf("audit repository sink initialization failed: %w", err)
		}
		sinks = append(sinks, repoSink)
	}

	if cfg.RabbitMQURL != "" {
		mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		checks["rabbitmq"] = mq.Ping

		queueSink, err := audit.NewQueueSink(queue.NewRabbitMQPublisher(mq), queue.EscalationsQueue)
		if err != nil {
			_ = mq.Close()
			return nil, fmt.Errorf("audit queue sink initialization failed: %w", err)
		}
		sinks = append(sinks, queueSink)
	}

	if cfg.AlertWebhookURL != "" {
		webhookSink, err := audit.NewWebhookSink(cfg.AlertWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("audit webhook sink initialization failed: %w", err)
		}
		sinks = append(sinks, webhookSink)
	}

	multi := audit.NewMultiSink(sinks, logger, metrics)
	logger.Info("audit sinks configured", zap.Strings("sinks", multi.Names()))

	return multi, nil
}
