package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/resilience"
)

// Config holds the settings shared by all adapters. Zero values fall back
// to sensible defaults; BaseURL overrides exist for tests.
type Config struct {
	APIKey     string
	BaseURL    string
	MaxResults int    // per-search cap; clamped to the source's hard ceiling
	Contact    string // mailto address advertised in the User-Agent
	HTTPClient *http.Client
	Retry      resilience.Policy
	Breaker    resilience.BreakerConfig
	CallLog    *resilience.CallLog
	Logger     *slog.Logger
}

func (c Config) userAgent() string {
	contact := c.Contact
	if contact == "" {
		contact = "ops@refmatch.example"
	}
	return fmt.Sprintf("refmatch/1.0 (mailto:%s)", contact)
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// findByID resolves a synthetic author id by replaying a name search and
// matching on the deterministic id. Returns nil when the author no longer
// appears in the source's results.
func findByID(ctx context.Context, a Adapter, id string) (*model.Author, error) {
	name, _, ok := decodeSyntheticID(id)
	if !ok || name == "" {
		return nil, nil
	}
	authors, err := a.SearchByName(ctx, name, SearchOptions{MaxResults: 25})
	if err != nil {
		return nil, err
	}
	for i := range authors {
		if authors[i].ID == id {
			return &authors[i], nil
		}
	}
	return nil, nil
}
