package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/directory"
	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/petauth/internal/auth/http"
	"github.com/aussiebroadwan/petauth/internal/auth/service"
	"github.com/aussiebroadwan/petauth/internal/auth/store"
	"github.com/aussiebroadwan/petauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/petauth/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/petauth/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/petauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/petauth/pkg/jwtx"
	"github.com/aussiebroadwan/petauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	storeConnectTimeout = 10 * time.Second
)

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store     store.Store
	signer    jwtx.Signer
	keys      *jwtx.KeySet
	verifier  *jwtx.KeyVerifier
	directory *directory.Directory

	tokenService        *service.TokenService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New validates cfg and builds the application. Call Close (or Run, which
// shuts down on exit) to release the store.
func New(cfg Config) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service: "petauth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	return newWithLogger(cfg, logger)
}

func newWithLogger(cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{cfg: cfg, logger: logger}

	dir, err := directory.New(cfg.Principals...)
	if err != nil {
		return nil, err
	}
	app.directory = dir

	if err := app.initKeys(); err != nil {
		return nil, err
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
		"revocation_failure_policy", app.router.FailurePolicy.String(),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		_ = app.store.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases the store. Use it when the application was built for a one
// shot command and Run was never called.
func (app *Application) Close() error {
	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Sweep runs one housekeeping pass.
func (app *Application) Sweep(ctx context.Context) (service.SweepResult, error) {
	return app.housekeepingService.RunOnce(ctx)
}

// Issue logs a configured principal in and returns its first token pair.
// Tokens minted here only verify on a server sharing the signing key.
func (app *Application) Issue(ctx context.Context, ref domain.PrincipalRef) (*domain.TokenPair, error) {
	p, err := app.directory.ResolvePrincipal(ctx, ref)
	if err != nil {
		return nil, err
	}
	return app.tokenService.Login(ctx, p)
}

func (app *Application) initKeys() error {
	signer, err := LoadSigner(app.cfg, app.logger)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	app.signer = signer

	app.keys = jwtx.NewKeySet()
	if err := app.keys.AddSigner(signer); err != nil {
		return err
	}

	app.verifier = jwtx.NewVerifier(app.keys, jwtx.VerifyOptions{
		Issuer:   app.cfg.Issuer,
		Audience: app.cfg.Audience,
		Leeway:   app.cfg.Leeway,
	})
	return nil
}

// initStore opens the configured driver and applies its migrations.
func (app *Application) initStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()

	st, err := OpenStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", app.cfg.StoreDriver, err)
	}

	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}
	app.store = st

	if app.cfg.StoreDriver == DriverMemory {
		app.logger.Warn("memory store in use; revocations are lost on restart and not shared between instances")
	}
	app.logger.Info("store ready", "driver", app.cfg.StoreDriver)
	return nil
}

// OpenStore connects to the driver named by cfg.StoreDriver. Migrations are
// left to the caller.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case DriverSQLite:
		return sqlite.NewStore(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DatabaseFile))
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.DatabaseURL)
	case DriverRedis:
		return redis.NewStore(ctx, redis.Options{Addr: cfg.RedisAddr, Prefix: cfg.RedisPrefix})
	case DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Issuer: &service.Issuer{
			Signer:    app.signer,
			Issuer:    app.cfg.Issuer,
			Audience:  app.cfg.Audience,
			AccessTTL: app.cfg.AccessTTL,
		},
		Store:                 app.store,
		Principals:            app.directory,
		RefreshTTL:            app.cfg.RefreshTTL,
		RevokeRefreshOnLogout: app.cfg.RevokeRefreshOnLogout,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.store,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys,
		app.verifier,
		BuildVersion,
		app.store,
		app.logger,
	)

	// Validate already rejected unknown policies.
	policy, _ := app.cfg.FailurePolicy()

	router.TokenService = app.tokenService
	router.FailurePolicy = policy
	router.Cookie = httpapi.CookieConfig{Secure: app.cfg.RefreshCookieSecure}
	router.RateLimit = app.cfg.RateLimit()
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
