// Package beacon is the public API for embedding the Beacon campaign execution
// read service.
//
//	app, err := beacon.New(
//	    beacon.WithVersion(version),
//	    beacon.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph is one-way: beacon (root) imports internal/*, never the
// reverse.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/beacon/api"
	"github.com/ashita-ai/beacon/internal/config"
	"github.com/ashita-ai/beacon/internal/engine"
	"github.com/ashita-ai/beacon/internal/mcp"
	"github.com/ashita-ai/beacon/internal/ratelimit"
	"github.com/ashita-ai/beacon/internal/server"
	"github.com/ashita-ai/beacon/internal/service/contract"
	"github.com/ashita-ai/beacon/internal/service/funnel"
	"github.com/ashita-ai/beacon/internal/service/overview"
	"github.com/ashita-ai/beacon/internal/service/runs"
	"github.com/ashita-ai/beacon/internal/stages"
	"github.com/ashita-ai/beacon/internal/storage"
	"github.com/ashita-ai/beacon/internal/storage/sqlite"
	"github.com/ashita-ai/beacon/internal/telemetry"
	"github.com/ashita-ai/beacon/migrations"
)

// App is the Beacon server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	store        storage.Store
	srv          *server.Server
	validator    *contract.Validator
	limiter      ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New loads configuration, opens the store, applies migrations and wires
// every subsystem. It does NOT start any goroutines or accept HTTP
// connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	cfg, err := resolveConfig(o)
	if err != nil {
		return nil, err
	}

	logger.Info("beacon starting", "version", version, "port", cfg.Port, "store", cfg.StoreDriver)

	otelShutdown, err := telemetry.Init(context.Background(), telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
		StoreDriver: cfg.StoreDriver,
		EngineURL:   cfg.EngineURL,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	stageCfg, err := stages.Load(cfg.StagesFile)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("stages: %w", err)
	}

	store := o.store
	if store == nil {
		store, err = OpenStore(context.Background(), cfg, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, err
		}
	}

	limiter, err := newLimiter(cfg, logger)
	if err != nil {
		_ = store.Close()
		_ = otelShutdown(context.Background())
		return nil, err
	}

	engineClient := engine.New(cfg.EngineURL, cfg.EngineTimeout)
	if !engineClient.Configured() {
		logger.Info("execution engine: not configured (BEACON_ENGINE_URL empty)")
	}
	validator := contract.New(engineClient, cfg.ContractTimeout, logger)

	runSvc := runs.New(store, store, store, logger)
	funnelSvc := funnel.New(runSvc, store, stageCfg, logger)
	overviewSvc := overview.New(runSvc, funnelSvc, validator)

	mcpSrv := mcp.New(mcp.Deps{
		Runs:     runSvc,
		Funnel:   funnelSvc,
		Overview: overviewSvc,
		Contract: validator,
		Stages:   stageCfg,
	}, logger, version)

	srv := server.New(server.ServerConfig{
		Store:               store,
		Runs:                runSvc,
		Funnel:              funnelSvc,
		Overview:            overviewSvc,
		Contract:            validator,
		Logger:              logger,
		Engine:              engineClient,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		srv:          srv,
		validator:    validator,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler without starting a listener.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run validates the execution contract in the background, starts the HTTP
// server, then blocks until ctx is cancelled or a fatal server error occurs.
// On return, Shutdown has been called.
func (a *App) Run(ctx context.Context) error {
	go func() {
		res := a.validator.Validate(ctx)
		a.logger.Info("execution contract validated",
			"execution_supported", res.ExecutionSupported,
			"reason", res.Reason)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the limiter, the
// store and the OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("beacon shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	if err := a.limiter.Close(); err != nil {
		a.logger.Warn("rate limiter close failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", "error", err)
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("beacon stopped")
	return nil
}

// resolveConfig loads configuration (env vars, after .env) and applies
// option overrides. An explicit WithConfig skips the environment.
func resolveConfig(o resolvedOptions) (config.Config, error) {
	var cfg config.Config
	if o.config != nil {
		cfg = *o.config
	} else {
		// .env is optional; production won't have one.
		_ = godotenv.Load()
		loaded, err := config.Load()
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.StoreDriver = config.DriverPostgres
		cfg.DatabaseURL = o.databaseURL
	}
	if o.sqlitePath != "" {
		cfg.StoreDriver = config.DriverSQLite
		cfg.SQLitePath = o.sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// OpenStore opens the configured backend and applies its migrations.
//
// The PostgreSQL pool is lazy: an unreachable database at startup only logs,
// and reads degrade until it comes back. SQLite is local, so any failure is
// fatal.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := store.RunMigrations(ctx, migrations.SQLite()); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return store, nil
	default:
		db, err := storage.New(cfg.DatabaseURL, cfg.DBMaxConns, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := db.RunMigrations(migrateCtx, migrations.Postgres()); err != nil {
			if !storage.IsUnavailable(err) {
				_ = db.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
			logger.Warn("postgres unavailable at startup; migrations deferred to `beacon migrate`", "error", err)
		}
		return db, nil
	}
}

func newLimiter(cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if cfg.RedisURL != "" {
		l, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.IngestRPS, cfg.IngestBurst)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		logger.Info("rate limiting: redis (shared token bucket)",
			"rps", cfg.IngestRPS, "burst", cfg.IngestBurst)
		return l, nil
	}
	logger.Info("rate limiting: memory (in-process token bucket)",
		"rps", cfg.IngestRPS, "burst", cfg.IngestBurst)
	return ratelimit.NewMemoryLimiter(cfg.IngestRPS, cfg.IngestBurst), nil
}
