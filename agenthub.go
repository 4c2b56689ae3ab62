// Package agenthub is the public API for embedding the Agent Hub server.
//
// Internal tooling and deployment wrappers import this package to construct
// and run the hub without forking it:
//
//	app, err := agenthub.New(
//	    agenthub.WithVersion(version),
//	    agenthub.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: agenthub (root) imports
// internal/*, but internal/* never imports agenthub (root).
package agenthub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/digital-coe/agenthub/internal/config"
	"github.com/digital-coe/agenthub/internal/ratelimit"
	"github.com/digital-coe/agenthub/internal/server"
	"github.com/digital-coe/agenthub/internal/service/gapmatch"
	"github.com/digital-coe/agenthub/internal/service/usage"
	"github.com/digital-coe/agenthub/internal/storage"
	"github.com/digital-coe/agenthub/internal/storage/lite"
	"github.com/digital-coe/agenthub/internal/telemetry"
	"github.com/digital-coe/agenthub/migrations"
)

// store is the union of the persistence surfaces the handlers and services
// need. Both *storage.DB (Postgres) and *lite.Store (SQLite) satisfy it.
type store interface {
	server.Store
	usage.Store
	gapmatch.Store
	Close(ctx context.Context)
}

// App is the Agent Hub server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        store
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Agent Hub server. It opens the store, runs migrations
// (Postgres mode), wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("agenthub starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry. No-op when OTEL_EXPORTER_OTLP_ENDPOINT is unset.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Open the store. Postgres when a database URL is configured, otherwise a
	// local SQLite file with identical behavior.
	var st store
	if cfg.DatabaseURL != "" {
		db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("storage: %w", err)
		}
		// RunMigrations tracks applied files in schema_migrations and skips
		// duplicates, so errors here indicate real failures.
		if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("store: postgres")
		st = db
	} else {
		ls, err := lite.Open(cfg.SQLitePath, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("storage: %w", err)
		}
		logger.Info("store: sqlite", "path", cfg.SQLitePath)
		st = ls
	}

	// Services.
	reconciler := usage.New(st, cfg.ImportedBy, logger)
	matcher := gapmatch.New(st, logger)

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// HTTP server.
	handlers := server.NewHandlers(server.HandlersDeps{
		Store:               st,
		Reconciler:          reconciler,
		Matcher:             matcher,
		Logger:              logger,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})
	srv := server.New(server.ServerConfig{
		Handlers:     handlers,
		Limiter:      limiter,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &App{
		cfg:          cfg,
		store:        st,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically — callers
// should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the limiter, the
// store, and the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("agenthub shutting down")

	httpCtx, httpCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	_ = a.limiter.Close()
	a.store.Close(context.Background())
	_ = a.otelShutdown(context.Background())

	a.logger.Info("agenthub stopped")
	return nil
}
