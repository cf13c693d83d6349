package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/refmatch/refmatch/internal/apperr"
	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/resilience"
)

const (
	elsevierDefaultBaseURL = "https://api.elsevier.com"
	elsevierMinDelay       = time.Second
	elsevierMaxResults     = 200 // Scopus search hard ceiling per request window
)

// Elsevier searches the Scopus search API. An API key is required; use
// NewElsevier's error to fail fast at wiring time rather than per request.
type Elsevier struct {
	baseURL    string
	apiKey     string
	maxResults int
	client     *resilience.Client
}

// NewElsevier creates the Scopus adapter. The API key is mandatory.
func NewElsevier(cfg Config) (*Elsevier, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindValidationInput, string(model.SourceElsevier), "API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elsevierDefaultBaseURL
	}
	return &Elsevier{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		maxResults: clampMax(cfg.MaxResults, elsevierMaxResults),
		client: resilience.NewClient(resilience.ClientConfig{
			Source:      string(model.SourceElsevier),
			UserAgent:   cfg.userAgent(),
			MinInterval: elsevierMinDelay,
			Retry:       cfg.Retry,
			Breaker:     cfg.Breaker,
			HTTPClient:  cfg.HTTPClient,
			CallLog:     cfg.CallLog,
			Logger:      cfg.logger(),
		}),
	}, nil
}

// Source returns ELSEVIER.
func (e *Elsevier) Source() model.SourceID { return model.SourceElsevier }

// Client exposes the adapter's resilience stack for health reporting.
func (e *Elsevier) Client() *resilience.Client { return e.client }

type scopusResponse struct {
	Results struct {
		TotalResults string        `json:"opensearch:totalResults"`
		Entries      []scopusEntry `json:"entry"`
	} `json:"search-results"`
}

type scopusEntry struct {
	Creator         string `json:"dc:creator"`
	PublicationName string `json:"prism:publicationName"`
	Authors         []struct {
		AuthID   string `json:"authid"`
		AuthName string `json:"authname"`
	} `json:"author"`
	Affiliations []struct {
		Name    string `json:"affilname"`
		City    string `json:"affiliation-city"`
		Country string `json:"affiliation-country"`
	} `json:"affiliation"`
}

// SearchAuthors queries Scopus with TITLE-ABS-KEY clauses.
func (e *Elsevier) SearchAuthors(ctx context.Context, terms model.SearchTerms, opts SearchOptions) (*AdapterResult, error) {
	return e.search(ctx, BuildQuery(model.SourceElsevier, terms), opts)
}

// SearchByName queries Scopus with an AUTH clause.
func (e *Elsevier) SearchByName(ctx context.Context, name string, opts SearchOptions) ([]model.Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	res, err := e.search(ctx, fmt.Sprintf("AUTH(%s)", name), opts)
	if err != nil {
		return nil, err
	}
	return filterByName(res.Authors, name), nil
}

// SearchByEmail returns empty: Scopus does not index author emails.
func (e *Elsevier) SearchByEmail(context.Context, string) ([]model.Author, error) {
	return nil, nil
}

// GetAuthorProfile resolves a synthetic candidate id, or nil if unknown.
func (e *Elsevier) GetAuthorProfile(ctx context.Context, id string) (*model.Author, error) {
	return findByID(ctx, e, id)
}

func (e *Elsevier) search(ctx context.Context, query string, opts SearchOptions) (*AdapterResult, error) {
	start := time.Now()
	result := &AdapterResult{Source: model.SourceElsevier}
	if strings.TrimSpace(query) == "" {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	count := clampMax(opts.MaxResults, e.maxResults)

	q := url.Values{}
	q.Set("query", query)
	q.Set("count", strconv.Itoa(count))
	q.Set("start", strconv.Itoa(max(opts.Offset, 0)))
	switch opts.SortHint {
	case SortDate:
		q.Set("sort", "-coverDate")
	case SortCitations:
		q.Set("sort", "-citedby-count")
	default:
		q.Set("sort", "relevancy")
	}
	if opts.From != nil && opts.To != nil {
		q.Set("date", fmt.Sprintf("%d-%d", opts.From.Year(), opts.To.Year()))
	}

	header := http.Header{}
	header.Set("X-ELS-APIKey", e.apiKey)

	var resp scopusResponse
	if err := e.client.GetJSON(ctx, e.baseURL+"/content/search/scopus?"+q.Encode(), header, &resp); err != nil {
		return nil, err
	}

	total, _ := strconv.Atoi(resp.Results.TotalResults)
	result.TotalFound = total

	ac := newAccumulator(model.SourceElsevier)
	for _, entry := range resp.Results.Entries {
		affs := make([]model.Affiliation, 0, len(entry.Affiliations))
		for _, af := range entry.Affiliations {
			if af.Name == "" {
				continue
			}
			affs = append(affs, model.Affiliation{
				ID:              SyntheticAffiliationID(af.Name),
				InstitutionName: af.Name,
				Address:         af.City,
				Country:         af.Country,
			})
		}
		areas := []string{entry.PublicationName}

		if len(entry.Authors) > 0 {
			for _, a := range entry.Authors {
				ac.add(a.AuthName, a.AuthID, "", affs, areas, nil)
			}
			continue
		}
		if entry.Creator != "" {
			ac.add(entry.Creator, "", "", affs, areas, nil)
		}
	}

	result.Authors = ac.authors()
	fetched := opts.Offset + len(resp.Results.Entries)
	if fetched < total && len(resp.Results.Entries) > 0 {
		result.HasMore = true
		result.NextOffset = &fetched
	}
	result.Elapsed = time.Since(start)
	return result, nil
}
