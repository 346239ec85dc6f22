package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/middleware"
	"github.com/Ramsey-B/stem/pkg/startup"
	"github.com/Ramsey-B/stem/pkg/tracing"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/config"
	accountrepo "github.com/Ramsey-B/fern/internal/repositories/account"
	callrepo "github.com/Ramsey-B/fern/internal/repositories/call"
	contactrepo "github.com/Ramsey-B/fern/internal/repositories/contact"
	"github.com/Ramsey-B/fern/internal/repositories/dependents"
	domainaliasrepo "github.com/Ramsey-B/fern/internal/repositories/domainalias"
	mergeauditrepo "github.com/Ramsey-B/fern/internal/repositories/mergeaudit"
	participantrepo "github.com/Ramsey-B/fern/internal/repositories/participant"
	"github.com/Ramsey-B/fern/pkg/accounts"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/queue"
	"github.com/Ramsey-B/fern/pkg/resolution"
	accountroutes "github.com/Ramsey-B/fern/pkg/routes/account"
	callroutes "github.com/Ramsey-B/fern/pkg/routes/call"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	queueroutes "github.com/Ramsey-B/fern/pkg/routes/queue"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup, err := logging.New(cfg.AppName, cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	tracing.SetTracer(tracerProvider.Tracer(cfg.AppName))

	app := &application{cfg: cfg, logger: logger}

	boot := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&postgresDependency{app: app})
	boot.AddDependency(&kafkaDependency{app: app})
	boot.AddDependency(&httpDependency{app: app})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
	}
	_ = tracerProvider.Shutdown(shutdownCtx)
}

// application holds the wired service graph shared by the startup
// dependencies
type application struct {
	cfg    config.Config
	logger ectologger.Logger

	sqlxDB   *sqlx.DB
	db       database.DB
	producer *kafka.Producer
	consumer *kafka.Consumer
	echo     *echo.Echo
	checker  *health.Checker
}

// postgresDependency connects to Postgres, runs migrations, and wires the
// repository and service graph into the DI container.
type postgresDependency struct {
	app *application
}

func (d *postgresDependency) GetName() string { return "postgres" }
func (d *postgresDependency) DependsOn() []string { return nil }

func (d *postgresDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	sqlxDB, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return err
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	d.app.sqlxDB = sqlxDB
	d.app.db = database.NewDatabaseInstance(sqlxDB, d.app.logger)

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}
	migrations := database.NewMigrationService(d.app.logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return err
	}

	return d.app.wire()
}

func (d *postgresDependency) Stop(ctx context.Context) error {
	if d.app.sqlxDB != nil {
		return d.app.sqlxDB.Close()
	}
	return nil
}

// wire builds every repository and service and registers them in the DI
// container the route handlers resolve from.
func (a *application) wire() error {
	callRepo := callrepo.NewRepository(a.db, a.logger)
	participantRepo := participantrepo.NewRepository(a.db, a.logger)
	accountRepo := accountrepo.NewRepository(a.db, a.logger)
	contactRepo := contactrepo.NewRepository(a.db, a.logger)
	aliasRepo := domainaliasrepo.NewRepository(a.db, a.logger)
	auditRepo := mergeauditrepo.NewRepository(a.db, a.logger)

	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaOutputTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	emitter := events.NewEmitter(a.producer, a.logger)

	engine := matching.NewEngine(matching.ConfigFromApp(a.cfg))

	registry := merging.NewRegistry(
		dependents.NewNarrativeDocumentRepository(a.db, a.logger),
		dependents.NewPublishedPageRepository(a.db, a.logger),
		dependents.NewCRMEventRepository(a.db, a.logger),
	)
	mergeEngine := merging.NewEngine(a.db, a.logger, accountRepo, callRepo, contactRepo, aliasRepo, auditRepo, registry, emitter)

	resolutionSvc := resolution.NewService(a.cfg, a.db, a.logger, engine, callRepo, participantRepo, accountRepo, contactRepo, aliasRepo, emitter)
	queueSvc := queue.NewService(a.cfg, a.db, a.logger, engine, callRepo, participantRepo, accountRepo, aliasRepo)
	accountsSvc := accounts.NewService(a.logger, accountRepo, callRepo, contactRepo, aliasRepo, auditRepo)

	ingest := processor.NewProcessor(a.cfg, a.db, a.logger, engine, callRepo, participantRepo, accountRepo, aliasRepo, emitter)
	a.consumer = kafka.NewConsumer(a.cfg, a.logger, ingest.HandleMessage)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, a.logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*queue.Service](container, queueSvc); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*resolution.Service](container, resolutionSvc); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*merging.Engine](container, mergeEngine); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*accounts.Service](container, accountsSvc); err != nil {
		return err
	}

	return nil
}

// kafkaDependency starts the input topic consumer after the database is up
type kafkaDependency struct {
	app *application
}

func (d *kafkaDependency) GetName() string { return "kafka" }
func (d *kafkaDependency) DependsOn() []string { return []string{"postgres"} }

func (d *kafkaDependency) Start(ctx context.Context) error {
	if !d.app.cfg.KafkaConsumerEnabled {
		d.app.logger.Info("Kafka consumer disabled")
		return nil
	}
	return d.app.consumer.Start(ctx)
}

func (d *kafkaDependency) Stop(ctx context.Context) error {
	if d.app.consumer != nil && d.app.cfg.KafkaConsumerEnabled {
		if err := d.app.consumer.Stop(); err != nil {
			return err
		}
	}
	if d.app.producer != nil {
		return d.app.producer.Close()
	}
	return nil
}

// httpDependency runs the echo server
type httpDependency struct {
	app *application
}

func (d *httpDependency) GetName() string { return "http" }
func (d *httpDependency) DependsOn() []string { return []string{"postgres", "kafka"} }

func (d *httpDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(d.app.logger))
	e.HTTPErrorHandler = middleware.Error(d.app.logger)

	var kafkaHealth interface{ Health() bool }
	if cfg.KafkaConsumerEnabled {
		kafkaHealth = d.app.consumer
	}
	d.app.checker = health.NewChecker(d.app.sqlxDB, kafkaHealth, os.Getenv("APP_VERSION"))
	d.app.checker.RegisterRoutes(e)

	api := e.Group("/api")
	queueroutes.Register(api.Group("/queue"))
	callroutes.Register(api.Group("/calls"))
	accountroutes.Register(api.Group("/accounts"))

	d.app.echo = e

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			d.app.logger.WithError(err).Error("HTTP server stopped")
		}
	}()

	d.app.checker.SetReady(true)
	return nil
}

func (d *httpDependency) Stop(ctx context.Context) error {
	if d.app.checker != nil {
		d.app.checker.SetReady(false)
	}
	if d.app.echo != nil {
		return d.app.echo.Shutdown(ctx)
	}
	return nil
}
