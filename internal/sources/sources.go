// Package sources implements the database adapters that translate neutral
// search terms into source-specific requests against PubMed, Elsevier
// Scopus, and Crossref (Wiley and Taylor & Francis), and normalise the
// responses into author records.
//
// Adapters enforce their own outbound rate limit and surface failures as
// tagged apperr errors; retries and circuit breaking happen in the
// resilience.Client each adapter owns.
package sources

import (
	"context"
	"time"

	"github.com/refmatch/refmatch/internal/model"
)

// SortHint suggests an upstream result ordering.
type SortHint string

const (
	SortRelevance SortHint = "relevance"
	SortDate      SortHint = "date"
	SortCitations SortHint = "citations"
)

// SearchOptions bounds one adapter search.
type SearchOptions struct {
	MaxResults int // capped per source
	Offset     int
	From, To   *time.Time // optional publication date range
	SortHint   SortHint
}

// AdapterResult is one adapter's normalised response to SearchAuthors.
type AdapterResult struct {
	Source     model.SourceID `json:"source"`
	Authors    []model.Author `json:"authors"`
	TotalFound int            `json:"total_found"`
	Elapsed    time.Duration  `json:"elapsed"`
	HasMore    bool           `json:"has_more"`
	NextOffset *int           `json:"next_offset,omitempty"`
}

// Adapter is the contract every external database adapter implements.
//
// SearchByEmail may return an empty slice when the source does not index
// email addresses. GetAuthorProfile returns nil when the author is unknown.
type Adapter interface {
	Source() model.SourceID
	SearchAuthors(ctx context.Context, terms model.SearchTerms, opts SearchOptions) (*AdapterResult, error)
	SearchByName(ctx context.Context, name string, opts SearchOptions) ([]model.Author, error)
	SearchByEmail(ctx context.Context, email string) ([]model.Author, error)
	GetAuthorProfile(ctx context.Context, id string) (*model.Author, error)
}

// clampMax applies the caller's cap, the per-source hard ceiling, and the
// default of 100.
func clampMax(requested, ceiling int) int {
	if requested <= 0 {
		requested = 100
	}
	if requested > ceiling {
		return ceiling
	}
	return requested
}
