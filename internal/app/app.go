// Package app assembles the service from configuration: infrastructure is
// brought up through the startup graph, then repositories and services are
// wired on top of it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/joiedevivre/jasmine/config"
	"github.com/joiedevivre/jasmine/internal/repositories/adminuser"
	"github.com/joiedevivre/jasmine/internal/repositories/auditlog"
	"github.com/joiedevivre/jasmine/internal/repositories/cascadestore"
	"github.com/joiedevivre/jasmine/internal/repositories/dependents"
	"github.com/joiedevivre/jasmine/internal/repositories/duplicategroup"
	"github.com/joiedevivre/jasmine/internal/repositories/identity"
	"github.com/joiedevivre/jasmine/pkg/auth"
	"github.com/joiedevivre/jasmine/pkg/cascade"
	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/duplicates"
	"github.com/joiedevivre/jasmine/pkg/events"
	"github.com/joiedevivre/jasmine/pkg/graph"
	"github.com/joiedevivre/jasmine/pkg/kafka"
	"github.com/joiedevivre/jasmine/pkg/locking"
	"github.com/joiedevivre/jasmine/pkg/matching"
	"github.com/joiedevivre/jasmine/pkg/middleware"
	"github.com/joiedevivre/jasmine/pkg/redis"
	"github.com/joiedevivre/jasmine/pkg/routes"
	cascaderoutes "github.com/joiedevivre/jasmine/pkg/routes/cascade"
	duplicateroutes "github.com/joiedevivre/jasmine/pkg/routes/duplicates"
	"github.com/joiedevivre/jasmine/pkg/routes/health"
	"github.com/joiedevivre/jasmine/pkg/startup"
)

const (
	depPostgres   = "postgres"
	depMigrations = "migrations"
	depRedis      = "redis"
	depKafka      = "kafka"
	depGraph      = "graph"
	depServices   = "services"
	depHTTP       = "http"
)

// Version is stamped at build time.
var Version = "dev"

type App struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
	server   *echo.Echo
	health   *health.Checker

	Detector *duplicates.Detector
	Review   *duplicates.ReviewService
	Cascade  *cascade.Service
}

type Options struct {
	// Serve starts the HTTP server once the services are wired.
	Serve bool
	// Migrate applies schema migrations even when MIGRATIONS_ENABLED is off.
	Migrate bool
	// MigrateOnly stops after the migrations dependency.
	MigrateOnly bool
}

func New(cfg *config.Config, logger ectologger.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		health:  health.NewChecker(Version),
	}
}

// Start brings up every dependency the options call for.
func (a *App) Start(ctx context.Context, opts Options) error {
	a.startup.AddDependency(startup.Func{
		Name:      depPostgres,
		StartFunc: a.connectPostgres,
		StopFunc:  func(context.Context) error { return a.db.Close() },
	})

	wired := []string{depPostgres}
	if a.cfg.Migration.Enabled || opts.Migrate || opts.MigrateOnly {
		a.startup.AddDependency(startup.Func{
			Name:      depMigrations,
			Requires:  []string{depPostgres},
			StartFunc: a.migrate,
		})
		wired = append(wired, depMigrations)
	}

	if opts.MigrateOnly {
		return a.startup.Start(ctx)
	}

	if a.cfg.Redis.Enabled {
		a.startup.AddDependency(startup.Func{
			Name:      depRedis,
			StartFunc: a.connectRedis,
			StopFunc:  func(context.Context) error { return a.redis.Close() },
		})
		wired = append(wired, depRedis)
	}
	if a.cfg.Kafka.Enabled {
		a.startup.AddDependency(startup.Func{
			Name:      depKafka,
			StartFunc: a.connectKafka,
			StopFunc:  func(context.Context) error { return a.producer.Close() },
		})
		wired = append(wired, depKafka)
	}
	if a.cfg.Graph.Enabled {
		a.startup.AddDependency(startup.Func{
			Name:      depGraph,
			StartFunc: a.connectGraph,
			StopFunc:  func(ctx context.Context) error { return a.graph.Close(ctx) },
		})
		wired = append(wired, depGraph)
	}

	a.startup.AddDependency(startup.Func{
		Name:      depServices,
		Requires:  wired,
		StartFunc: func(context.Context) error { a.wire(); return nil },
	})

	if opts.Serve {
		a.startup.AddDependency(startup.Func{
			Name:      depHTTP,
			Requires:  []string{depServices},
			StartFunc: a.serve,
			StopFunc:  a.shutdown,
		})
	}

	return a.startup.Start(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	return a.startup.Stop(ctx)
}

func (a *App) connectPostgres(ctx context.Context) error {
	db, err := database.Connect(ctx, database.Config{
		Driver:          a.cfg.DB.Driver,
		Host:            a.cfg.DB.Host,
		Port:            a.cfg.DB.Port,
		UserName:        a.cfg.DB.User,
		Password:        a.cfg.DB.Password,
		Name:            a.cfg.DB.Name,
		SSLMode:         a.cfg.DB.SSLMode,
		MaxOpenConns:    a.cfg.DB.MaxOpenConns,
		MaxIdleConns:    a.cfg.DB.MaxIdleConns,
		ConnMaxLifetime: a.cfg.DB.ConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.health.AddCheck("database", db.PingContext)
	return nil
}

func (a *App) migrate(_ context.Context) error {
	svc := database.NewMigrationService(a.logger, database.MigrationConfig{
		FolderPath:   a.cfg.Migration.FolderPath,
		Version:      a.cfg.Migration.Version,
		Force:        a.cfg.Migration.Force,
		AutoRollback: a.cfg.Migration.AutoRollback,
	})
	return svc.Up(a.db, a.cfg.DB.Name)
}

func (a *App) connectRedis(ctx context.Context) error {
	client := redis.NewClient(redis.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}, a.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	a.redis = client
	a.health.AddCheck("redis", client.Ping)
	return nil
}

func (a *App) connectKafka(_ context.Context) error {
	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers: a.cfg.Kafka.Brokers,
		Topic:   a.cfg.Kafka.Topic,
	}, a.logger)
	return nil
}

func (a *App) connectGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		URI:      a.cfg.Graph.URI,
		Username: a.cfg.Graph.Username,
		Password: a.cfg.Graph.Password,
		Database: a.cfg.Graph.Database,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return err
	}
	a.graph = client
	a.health.AddCheck("graph", client.VerifyConnectivity)
	return nil
}

// wire builds repositories and services on the started infrastructure.
func (a *App) wire() {
	authorizer := auth.NewAuthorizer(adminuser.NewRepository(a.db, a.logger), a.logger)
	audit := auditlog.NewRepository(a.db, a.logger)
	groups := duplicategroup.NewRepository(a.db, a.logger)
	store := cascadestore.NewRepository(a.db, a.logger)

	var publisher events.Publisher
	if a.producer != nil {
		publisher = a.producer
	}
	emitter := events.NewEmitter(publisher, a.logger)

	var locker locking.Locker = locking.Noop{}
	if a.cfg.Cascade.LockingEnabled {
		locker = redis.NewLocker(a.redis, "lock:", a.cfg.Cascade.LockTTL)
	}

	var sessions cascade.SessionStore = cascade.NewMemoryStore(a.cfg.Cascade.ConfirmationTTL)
	if a.redis != nil {
		sessions = cascade.NewRedisStore(a.redis, a.cfg.Cascade.ConfirmationTTL)
	}

	var pruner cascade.GraphPruner
	if a.graph != nil {
		pruner = a.graph
	}

	a.Detector = duplicates.NewDetector(duplicates.DetectorDeps{
		Authorizer: authorizer,
		Source:     identity.NewRepository(a.db, a.logger),
		Groups:     groups,
		Audit:      audit,
		Enricher: duplicates.NewEnricher(
			dependents.NewRepository(a.db, a.logger),
			a.cfg.Detection.EnrichmentConcurrency,
			a.cfg.Detection.EnrichmentQueriesPerSec,
			a.logger,
		),
		Locker:  locker,
		Emitter: emitter,
		Options: matching.Options{
			MinPhoneLength:     a.cfg.Detection.MinPhoneKeyLength,
			FuzzyNamesEnabled:  a.cfg.Detection.FuzzyNameMatchingEnabled,
			FuzzyNameThreshold: a.cfg.Detection.FuzzyNameThreshold,
		},
		Logger: a.logger,
	})
	a.Review = duplicates.NewReviewService(authorizer, groups, audit, a.logger)
	a.Cascade = cascade.NewService(cascade.ServiceDeps{
		Authorizer: authorizer,
		Planner:    cascade.NewPlanner(store, a.logger),
		Executor:   cascade.NewExecutor(store, database.NewTransactor(a.db), a.cfg.Cascade.Transactional, a.logger),
		Sessions:   sessions,
		Audit:      audit,
		Locker:     locker,
		Graph:      pruner,
		Emitter:    emitter,
		Logger:     a.logger,
	})
}

func (a *App) serve(ctx context.Context) error {
	authn, err := middleware.Authentication(ctx, a.logger, middleware.AuthConfig{
		Enabled:  a.cfg.Auth.OIDCEnabled,
		Issuer:   a.cfg.Auth.OIDCIssuer,
		ClientID: a.cfg.Auth.OIDCClientID,
	})
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Use(otelecho.Middleware(a.cfg.ServiceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	admin := e.Group(routes.Prefix, authn)
	duplicateroutes.NewHandler(a.Detector, a.Review, a.logger).Register(admin.Group("/duplicates"))
	cascaderoutes.NewHandler(a.Cascade, a.logger).Register(admin.Group("/businesses"))

	a.server = e
	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped")
		}
	}()

	a.health.SetReady(true)
	a.logger.Infof("Listening on %s", addr)
	return nil
}

func (a *App) shutdown(ctx context.Context) error {
	a.health.SetReady(false)
	ctx, cancel := context.WithTimeout(ctx, a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return a.server.Shutdown(ctx)
}

// ShutdownTimeout bounds the whole stop sequence.
func (a *App) ShutdownTimeout() time.Duration {
	return a.cfg.HTTP.ShutdownTimeout + 5*time.Second
}
