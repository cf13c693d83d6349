// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/refmatch/refmatch/internal/model"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings. Empty DatabaseURL selects the in-memory repository.
	DatabaseURL string

	// Admin bootstrap.
	AdminAPIKey string // API key for the initial admin user.

	// Search source settings.
	EnabledDatabases []model.SourceID
	PubMedAPIKey     string // unlocks the higher PubMed request rate
	ElsevierAPIKey   string // required for the Elsevier adapter to start
	Contact          string // mailto identity sent in the User-Agent
	MaxResultsPerDB  int
	SearchTimeout    time.Duration // per-adapter task timeout

	// Retry policy for outbound adapter calls.
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMultiplier  float64

	// Circuit breaker thresholds, one breaker per adapter.
	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration

	// Validation pipeline defaults; request-level config overrides these.
	Validation            model.ValidationConfig
	ValidationParallelism int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
	RateLimitPerMinute  int // inbound API rate limit per key
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                    envInt("REFMATCH_PORT", 8080),
		ReadTimeout:             envDuration("REFMATCH_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:            envDuration("REFMATCH_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:             envStr("DATABASE_URL", ""),
		AdminAPIKey:             envStr("REFMATCH_ADMIN_API_KEY", ""),
		EnabledDatabases:        envSources("REFMATCH_ENABLED_DATABASES"),
		PubMedAPIKey:            envStr("REFMATCH_PUBMED_API_KEY", ""),
		ElsevierAPIKey:          envStr("REFMATCH_ELSEVIER_API_KEY", ""),
		Contact:                 envStr("REFMATCH_CONTACT", ""),
		MaxResultsPerDB:         envInt("REFMATCH_MAX_RESULTS_PER_DATABASE", 100),
		SearchTimeout:           envDuration("REFMATCH_SEARCH_TIMEOUT", 300*time.Second),
		RetryMaxAttempts:        envInt("REFMATCH_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:          envDuration("REFMATCH_RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:           envDuration("REFMATCH_RETRY_MAX_DELAY", 10*time.Second),
		RetryMultiplier:         envFloat("REFMATCH_RETRY_MULTIPLIER", 2),
		BreakerFailureThreshold: envInt("REFMATCH_CIRCUIT_FAILURE_THRESHOLD", 5),
		BreakerResetTimeout:     envDuration("REFMATCH_CIRCUIT_RESET_TIMEOUT", 60*time.Second),
		Validation: model.ValidationConfig{
			MinPublications:            envInt("REFMATCH_VALIDATION_MIN_PUBLICATIONS", 5),
			MaxRetractions:             envInt("REFMATCH_VALIDATION_MAX_RETRACTIONS", 0),
			MinRecentPublications:      envInt("REFMATCH_VALIDATION_MIN_RECENT_PUBLICATIONS", 2),
			RecentYears:                envInt("REFMATCH_VALIDATION_RECENT_YEARS", 5),
			CheckInstitutionalConflict: envBool("REFMATCH_VALIDATION_CHECK_INSTITUTIONAL", true),
			CheckCoAuthorConflict:      envBool("REFMATCH_VALIDATION_CHECK_CO_AUTHOR", true),
			CollaborationYears:         envInt("REFMATCH_VALIDATION_COLLABORATION_YEARS", 3),
		},
		ValidationParallelism: envInt("REFMATCH_VALIDATION_PARALLELISM", 4),
		OTELEndpoint:          envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:          envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:           envStr("OTEL_SERVICE_NAME", "refmatch"),
		LogLevel:              envStr("REFMATCH_LOG_LEVEL", "info"),
		MaxRequestBodyBytes:   int64(envInt("REFMATCH_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		RateLimitPerMinute:    envInt("REFMATCH_RATE_LIMIT_PER_MINUTE", 120),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c Config) Validate() error {
	if len(c.EnabledDatabases) == 0 {
		return fmt.Errorf("config: REFMATCH_ENABLED_DATABASES must name at least one source")
	}
	for _, src := range c.EnabledDatabases {
		switch src {
		case model.SourcePubMed, model.SourceElsevier, model.SourceWiley, model.SourceTaylorFrancis:
		default:
			return fmt.Errorf("config: unknown source %q in REFMATCH_ENABLED_DATABASES", src)
		}
		if src == model.SourceElsevier && c.ElsevierAPIKey == "" {
			return fmt.Errorf("config: REFMATCH_ELSEVIER_API_KEY is required when ELSEVIER is enabled")
		}
	}
	if c.MaxResultsPerDB <= 0 {
		return fmt.Errorf("config: REFMATCH_MAX_RESULTS_PER_DATABASE must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("config: REFMATCH_RETRY_MAX_ATTEMPTS must be positive")
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("config: REFMATCH_RETRY_MULTIPLIER must be at least 1")
	}
	if c.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("config: REFMATCH_CIRCUIT_FAILURE_THRESHOLD must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: REFMATCH_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// envSources parses a comma-separated source list. Unset enables the
// keyless sources; ELSEVIER must be opted into because it needs an API
// key. Unknown names are kept so Validate can report them.
func envSources(key string) []model.SourceID {
	v := os.Getenv(key)
	if v == "" {
		return []model.SourceID{model.SourcePubMed, model.SourceWiley, model.SourceTaylorFrancis}
	}
	var out []model.SourceID
	for _, part := range strings.Split(v, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, model.SourceID(part))
		}
	}
	return out
}
