package refmatch

import (
	"log/slog"

	"github.com/refmatch/refmatch/internal/repo"
	"github.com/refmatch/refmatch/internal/sources"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	logger      *slog.Logger
	version     string
	repository  repo.Repository
	adapters    []sources.Adapter
}

// WithPort overrides the TCP port from config (REFMATCH_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithRepository replaces the configured persistence backend. Useful for
// embedding the engine on an existing store or for tests.
func WithRepository(r repo.Repository) Option {
	return func(o *resolvedOptions) { o.repository = r }
}

// WithAdapters replaces the config-driven search source set. When any
// adapter is supplied, REFMATCH_ENABLED_DATABASES is ignored entirely.
func WithAdapters(adapters ...sources.Adapter) Option {
	return func(o *resolvedOptions) { o.adapters = adapters }
}
