// Package refmatch is the public API for embedding the reviewer
// recommendation server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := refmatch.New(
//	    refmatch.WithVersion(version),
//	    refmatch.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: refmatch (root)
// imports internal/*, but internal/* never imports refmatch (root).
package refmatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/refmatch/refmatch/internal/aggregate"
	"github.com/refmatch/refmatch/internal/auth"
	"github.com/refmatch/refmatch/internal/config"
	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/orchestrator"
	"github.com/refmatch/refmatch/internal/ratelimit"
	"github.com/refmatch/refmatch/internal/recommend"
	"github.com/refmatch/refmatch/internal/repo"
	"github.com/refmatch/refmatch/internal/resilience"
	"github.com/refmatch/refmatch/internal/server"
	"github.com/refmatch/refmatch/internal/sources"
	"github.com/refmatch/refmatch/internal/storage"
	"github.com/refmatch/refmatch/internal/telemetry"
	"github.com/refmatch/refmatch/internal/validation"
	"github.com/refmatch/refmatch/migrations"
)

// App is the server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB // nil when running on the in-memory repository
	srv          *server.Server
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the server. It connects to the database (when one is
// configured), runs migrations, wires all subsystems, and returns a
// ready-to-run App. It does NOT start any goroutines or accept HTTP
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

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

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
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("refmatch starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Pick the repository: option override, then Postgres, then memory.
	var (
		rep repo.Repository
		db  *storage.DB
	)
	switch {
	case o.repository != nil:
		rep = o.repository
		logger.Info("storage: custom repository")
	case cfg.DatabaseURL != "":
		db, err = storage.New(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("migrations: %w", err)
		}
		rep = db
		logger.Info("storage: postgres")
	default:
		rep = repo.NewMemory()
		logger.Warn("storage: in-memory (no DATABASE_URL); data is lost on restart")
	}

	adapters := o.adapters
	if len(adapters) == 0 {
		adapters, err = buildAdapters(cfg, logger)
		if err != nil {
			if db != nil {
				db.Close()
			}
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("sources: %w", err)
		}
	}
	for _, a := range adapters {
		logger.Info("search source enabled", "source", string(a.Source()))
	}

	agg := aggregate.New(rep, logger)
	orch := orchestrator.New(adapters, agg, rep, logger, orchestrator.Config{
		TaskTimeout: cfg.SearchTimeout,
		MaxResults:  cfg.MaxResultsPerDB,
	})
	pipeline := validation.New(rep, logger, cfg.ValidationParallelism)
	recSvc := recommend.New(rep, logger, recommend.MaxLimit)

	var limiter ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewMemoryLimiter(float64(cfg.RateLimitPerMinute)/60, cfg.RateLimitPerMinute)
		logger.Info("rate limiting: memory (in-process token bucket)", "per_minute", cfg.RateLimitPerMinute)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// The configured API key is hashed once at startup; only the hash is
	// kept in memory.
	var apiKeyHash string
	if cfg.AdminAPIKey != "" {
		apiKeyHash, err = auth.HashAPIKey(cfg.AdminAPIKey)
		if err != nil {
			if db != nil {
				db.Close()
			}
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("auth: %w", err)
		}
	} else {
		logger.Warn("api auth: disabled (no REFMATCH_ADMIN_API_KEY)")
	}

	var pinger server.Pinger
	if db != nil {
		pinger = db
	}

	srv := server.New(server.ServerConfig{
		Repo:                rep,
		Orchestrator:        orch,
		Aggregator:          agg,
		Pipeline:            pipeline,
		Recommend:           recSvc,
		Logger:              logger,
		Limiter:             limiter,
		Pinger:              pinger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		APIKeyHash:          apiKeyHash,
		DefaultValidation:   cfg.Validation,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// buildAdapters constructs one adapter per enabled source, each with its
// own retry policy and circuit breaker.
func buildAdapters(cfg config.Config, logger *slog.Logger) ([]sources.Adapter, error) {
	base := sources.Config{
		Contact:    cfg.Contact,
		MaxResults: cfg.MaxResultsPerDB,
		Retry: resilience.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Multiplier:  cfg.RetryMultiplier,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: uint32(cfg.BreakerFailureThreshold), //nolint:gosec // validated positive in config.Validate
			ResetTimeout:     cfg.BreakerResetTimeout,
		},
		CallLog: resilience.NewCallLog(256),
		Logger:  logger,
	}

	var out []sources.Adapter
	for _, src := range cfg.EnabledDatabases {
		switch src {
		case model.SourcePubMed:
			c := base
			c.APIKey = cfg.PubMedAPIKey
			out = append(out, sources.NewPubMed(c))
		case model.SourceElsevier:
			c := base
			c.APIKey = cfg.ElsevierAPIKey
			a, err := sources.NewElsevier(c)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		case model.SourceWiley:
			out = append(out, sources.NewWiley(base))
		case model.SourceTaylorFrancis:
			out = append(out, sources.NewTaylorFrancis(base))
		default:
			return nil, fmt.Errorf("unknown source %q", src)
		}
	}
	return out, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically;
// callers should not call Shutdown separately.
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

// Shutdown gracefully stops the HTTP server, then closes the rate
// limiter, database pool, and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("refmatch shutting down")

	var firstErr error
	if err := a.srv.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("otel shutdown: %w", err)
		}
	}
	return firstErr
}

// Handler exposes the root HTTP handler for embedding in a larger mux or
// for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}
