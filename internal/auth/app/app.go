// Package app assembles the service: configuration, storage, identity
// provider, services, HTTP server, and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/tidewater/gatehouse/internal/auth/http"
	"github.com/tidewater/gatehouse/internal/auth/service"
	"github.com/tidewater/gatehouse/internal/auth/store"
	"github.com/tidewater/gatehouse/internal/auth/store/drivers/memory"
	"github.com/tidewater/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/tidewater/gatehouse/internal/identity/local"
	"github.com/tidewater/gatehouse/internal/obs"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/httpx"
	"github.com/tidewater/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db          store.Store
	provider    *local.Provider
	redisClient *redis.Client

	sessionService      *service.SessionService
	rbacService         *service.RBACService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	apperr.DevMode = cfg.Env == "dev"
	obs.Init()

	if err := app.initStore(); err != nil {
		return nil, err
	}

	kp, err := initSigningKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.provider = local.NewProvider(app.db, kp, cfg.Issuer,
		local.WithAccessTokenTTL(cfg.AccessTokenTTL))

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("gatehouse starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatehouse...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gatehouse stopped")
	return nil
}

// initStore builds the credential store for the configured driver and
// applies migrations.
func (app *Application) initStore() error {
	switch app.cfg.StoreDriver {
	case "memory":
		app.db = memory.NewStore()
		app.logger.Warn("using in-memory store, all data is lost on restart")
	default:
		// Journal mode and busy timeout are set as pragmas inside NewStore;
		// modernc's driver does not take them as DSN parameters.
		db, err := sqlite.NewStore("file:" + app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		app.db = db
	}

	if err := app.db.ApplyMigrations(); err != nil {
		_ = app.db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied", "driver", app.cfg.StoreDriver)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	throttle := &service.ThrottleEngine{
		Store:  app.db,
		Config: app.cfg.Throttle,
	}

	app.sessionService = &service.SessionService{
		Store:      app.db,
		Provider:   app.provider,
		Throttle:   throttle,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}

	app.rbacService = &service.RBACService{Store: app.db}
	app.userService = &service.UserService{Store: app.db, RBAC: app.rbacService}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.Throttle.Window,
	)
}

// counterStore picks the rate-limit counter backend: Redis when an
// address is configured (counters shared across replicas), in-process
// memory otherwise.
func (app *Application) counterStore() httpx.CounterStore {
	if app.cfg.RedisAddr == "" {
		return httpx.NewMemoryCounterStore()
	}

	app.redisClient = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	app.logger.Info("rate-limit counters backed by redis", "addr", app.cfg.RedisAddr)
	return httpx.NewRedisCounterStore(app.redisClient)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.provider,
		app.db,
		app.counterStore(),
		BuildVersion,
		app.logger,
	)

	router.Sessions = app.sessionService
	router.RBAC = app.rbacService
	router.Users = app.userService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
