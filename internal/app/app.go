package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"opsflow/internal/audit"
	"opsflow/internal/automation"
	"opsflow/internal/bus"
	"opsflow/internal/config"
	"opsflow/internal/handlers"
	"opsflow/internal/metrics"
	"opsflow/internal/middleware"
	"opsflow/internal/models"
	"opsflow/internal/observability"
	"opsflow/internal/repository"
)

// Run wires and starts the automation service: database, registries, engine,
// audit sink, optional bus consumer and the HTTP surface. It blocks until
// SIGINT/SIGTERM and shuts down gracefully.
func Run(cfg *config.Config) error {
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warnf("tracing shutdown: %v", err)
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	engine, err := buildEngine(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if cfg.Bus.Enabled {
		consumer, err := bus.NewConsumer(cfg.Bus, engine.Service, logger)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("bus consumer stopped: %v", err)
			}
		}()
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("opsflow"))
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.Server.RateLimit))
	engine.Handler.RegisterRoutes(api)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	go func() {
		logger.Infof("opsflow listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Engine bundles the constructed automation components the entry points and
// HTTP layer need.
type Engine struct {
	Service *automation.Service
	Handler *handlers.AutomationHandler
	Metrics *metrics.Collector
}

// buildEngine constructs the full engine graph on top of an open database.
func buildEngine(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) (*Engine, error) {
	if err := db.AutoMigrate(
		&models.AutomationRule{},
		&models.AutomationRun{},
		&models.AutomationAuditRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	triggers := automation.NewTriggerRegistry()
	if err := automation.RegisterDefaultTriggers(triggers); err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	actions := automation.NewActionRegistry()
	executor := automation.NewActionExecutor(actions, collector, logger)

	transport := automation.NewHTTPWebhookTransport(&http.Client{Timeout: cfg.Automation.WebhookTimeout})
	if err := automation.RegisterBuiltinActions(actions, executor, transport, logger); err != nil {
		return nil, err
	}

	runStore := repository.NewRunStore(db)
	ruleStore := repository.NewRuleStore(db, logger)
	ledger := automation.NewRunLedger(runStore, logger)
	matcher := automation.NewRuleMatcher(ruleStore)

	sink, reader := buildAuditSink(cfg, db, logger)
	service := automation.NewService(triggers, matcher, ledger, executor, collector, sink, logger)

	handler := handlers.NewAutomationHandler(
		service, runStore, reader, collector,
		audit.DefaultRedactor(), audit.Audience(cfg.Automation.DefaultAudience), logger,
	)

	return &Engine{Service: service, Handler: handler, Metrics: collector}, nil
}

// buildAuditSink selects the configured audit sink. The gorm sink doubles as
// the reader for the inspection routes; the redis sink is write-only, so a
// memory reader backs the HTTP view in that mode.
func buildAuditSink(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) (audit.Sink, audit.Reader) {
	switch cfg.Automation.AuditSink {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		memory := audit.NewMemorySink()
		return teeSink{audit.NewRedisSink(client, cfg.Automation.AuditStream, cfg.Automation.AuditStreamMax), memory}, memory
	case "memory":
		memory := audit.NewMemorySink()
		return memory, memory
	default:
		sink := audit.NewGormSink(db)
		return sink, sink
	}
}

// teeSink fans a capture out to both underlying sinks.
type teeSink struct {
	primary   audit.Sink
	secondary audit.Sink
}

func (t teeSink) Capture(ctx context.Context, env audit.Envelope) error {
	if err := t.secondary.Capture(ctx, env); err != nil {
		return err
	}
	return t.primary.Capture(ctx, env)
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
			cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(gormtracing.NewPlugin()); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return db, nil
}
