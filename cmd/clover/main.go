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

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/matchreview"
	"github.com/Ramsey-B/clover/pkg/clustering"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/routes/candidate"
	"github.com/Ramsey-B/clover/pkg/routes/cluster"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/matchrule"
	"github.com/Ramsey-B/clover/pkg/routes/resolve"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Clover exited with an error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapConfig.Level = level

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// services holds the infrastructure clients opened during startup
type services struct {
	db       *sqlx.DB
	graph    *graph.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	exporter, err := exporters.NewExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: true,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp, err := tracing.NewProvider(ctx, cfg.AppName, exporter)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	resolutionConfig, err := cfg.ResolutionConfig()
	if err != nil {
		return err
	}
	initialRules, err := cfg.MatchingRules()
	if err != nil {
		return err
	}
	registry, err := rules.NewRegistry(initialRules, resolutionConfig.DefaultWeights, logger)
	if err != nil {
		return err
	}

	checker := health.NewChecker(cfg.Version)
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	svc := &services{}
	addInfrastructure(boot, cfg, logger, checker, svc)

	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := boot.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies cleanly")
		}
	}()

	var store review.Store
	if svc.db != nil {
		store = matchreview.NewRepository(database.NewDatabaseInstance(svc.db, logger), logger)
	}
	ledger := review.NewLedger(logger, store)
	resolver := matching.NewResolver(logger)

	var projector cluster.Projector
	if svc.graph != nil {
		projector = graph.NewAliasProjector(svc.graph, logger)
	}

	var emitter *events.Emitter
	if svc.producer != nil {
		emitter = events.NewEmitter(svc.producer, logger)
	}

	if cfg.KafkaConsumerEnabled {
		importHandler := events.NewImportHandler(logger, resolver, registry, resolutionConfig, ledger, emitter)
		boot.AddDependency(startup.Dependency{
			Name:     "kafka-consumer",
			Requires: requiredBy(cfg),
			OnStart: func(ctx context.Context) error {
				svc.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       cfg.KafkaBrokers,
					Topic:         cfg.KafkaImportTopic,
					ConsumerGroup: cfg.KafkaConsumerGroup,
					MaxAttempts:   cfg.KafkaMaxAttempts,
					RetryBackoff:  time.Duration(cfg.KafkaRetryBackoffMs) * time.Millisecond,
				}, logger, importHandler.Handle)
				checker.AddCheck("kafka-consumer", func(context.Context) error {
					if !svc.consumer.Health() {
						return errors.New("consumer is not running")
					}
					return nil
				})
				return svc.consumer.Start(ctx)
			},
			OnStop: func(context.Context) error {
				return svc.consumer.Stop()
			},
		})
		if err := boot.Start(ctx); err != nil {
			return err
		}
	}

	e := newServer(cfg, logger)
	api := e.Group("/api/v1")
	resolve.NewHandler(logger, resolver, registry, resolutionConfig, ledger).Register(api)
	matchrule.NewHandler(logger, registry).Register(api.Group("/rules"))
	candidate.NewHandler(logger, ledger).Register(api.Group("/candidates"))
	cluster.NewHandler(logger, ledger, clustering.NewBuilder(logger), merging.NewCanonicalizer(logger), projector).Register(api)
	checker.RegisterRoutes(e)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Infof("Starting %s", cfg.AppName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down http server")
	}
	return nil
}

func newServer(cfg *config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	return e
}

// addInfrastructure registers the optional backing services with the startup sequence
func addInfrastructure(boot *startup.Startup, cfg *config.Config, logger ectologger.Logger, checker *health.Checker, svc *services) {
	if cfg.DatabaseEnabled() {
		boot.AddDependency(startup.Dependency{
			Name: "postgres",
			OnStart: func(ctx context.Context) error {
				db, err := database.Connect(ctx, cfg.Database(), logger)
				if err != nil {
					return err
				}
				migrations := database.NewMigrationService(logger, cfg.Migrations())
				if err := migrations.MigratePostgres(db.DB, cfg.DatabaseName); err != nil {
					_ = db.Close()
					return err
				}
				svc.db = db
				checker.AddCheck("postgres", db.PingContext)
				return nil
			},
			OnStop: func(context.Context) error {
				return svc.db.Close()
			},
		})
	}

	if cfg.GraphEnabled() {
		boot.AddDependency(startup.Dependency{
			Name: "neo4j",
			OnStart: func(ctx context.Context) error {
				client, err := graph.NewClient(cfg.Graph(), logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				svc.graph = client
				checker.AddCheck("neo4j", client.VerifyConnectivity)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return svc.graph.Close(ctx)
			},
		})
	}

	if cfg.KafkaProducerEnabled {
		boot.AddDependency(startup.Dependency{
			Name: "kafka-producer",
			OnStart: func(context.Context) error {
				svc.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeoutMs) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
				}, logger)
				return nil
			},
			OnStop: func(context.Context) error {
				return svc.producer.Close()
			},
		})
	}
}

// requiredBy lists the dependencies the import consumer writes through
func requiredBy(cfg *config.Config) []string {
	var deps []string
	if cfg.DatabaseEnabled() {
		deps = append(deps, "postgres")
	}
	if cfg.KafkaProducerEnabled {
		deps = append(deps, "kafka-producer")
	}
	return deps
}
