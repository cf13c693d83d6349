package sources

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/refmatch/refmatch/internal/apperr"
	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/resilience"
)

const (
	pubmedDefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// NCBI allows 3 req/s without an API key, 10 req/s with one.
	pubmedMinDelay      = 334 * time.Millisecond
	pubmedKeyedMinDelay = 100 * time.Millisecond

	pubmedMaxResults = 10000 // esearch retmax ceiling
)

// PubMed searches the NCBI E-utilities (esearch + esummary).
type PubMed struct {
	baseURL    string
	apiKey     string
	maxResults int
	client     *resilience.Client
}

// NewPubMed creates the PubMed adapter. The API key is optional; when set
// it is passed as the api_key query param and unlocks the higher rate.
func NewPubMed(cfg Config) *PubMed {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = pubmedDefaultBaseURL
	}
	minDelay := pubmedMinDelay
	if cfg.APIKey != "" {
		minDelay = pubmedKeyedMinDelay
	}
	return &PubMed{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		maxResults: clampMax(cfg.MaxResults, pubmedMaxResults),
		client: resilience.NewClient(resilience.ClientConfig{
			Source:      string(model.SourcePubMed),
			UserAgent:   cfg.userAgent(),
			MinInterval: minDelay,
			Retry:       cfg.Retry,
			Breaker:     cfg.Breaker,
			HTTPClient:  cfg.HTTPClient,
			CallLog:     cfg.CallLog,
			Logger:      cfg.logger(),
		}),
	}
}

// Source returns PUBMED.
func (p *PubMed) Source() model.SourceID { return model.SourcePubMed }

// Client exposes the adapter's resilience stack for health reporting.
func (p *PubMed) Client() *resilience.Client { return p.client }

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type esummaryDoc struct {
	Title           string `json:"title"`
	FullJournalName string `json:"fulljournalname"`
	Authors         []struct {
		Name     string `json:"name"`
		AuthType string `json:"authtype"`
	} `json:"authors"`
}

// SearchAuthors runs esearch for matching article ids, then esummary to
// collect the articles' author lists.
func (p *PubMed) SearchAuthors(ctx context.Context, terms model.SearchTerms, opts SearchOptions) (*AdapterResult, error) {
	query := BuildQuery(model.SourcePubMed, terms)
	return p.search(ctx, query, opts)
}

// SearchByName searches with the [Author] field qualifier and keeps only
// authors whose family name matches the query.
func (p *PubMed) SearchByName(ctx context.Context, name string, opts SearchOptions) ([]model.Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	res, err := p.search(ctx, name+"[Author]", opts)
	if err != nil {
		return nil, err
	}
	return filterByName(res.Authors, name), nil
}

// SearchByEmail runs a plain term search; PubMed matches email addresses
// inside affiliation strings.
func (p *PubMed) SearchByEmail(ctx context.Context, email string) ([]model.Author, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	res, err := p.search(ctx, email, SearchOptions{MaxResults: 25})
	if err != nil {
		return nil, err
	}
	return res.Authors, nil
}

// GetAuthorProfile resolves a synthetic candidate id, or nil if unknown.
func (p *PubMed) GetAuthorProfile(ctx context.Context, id string) (*model.Author, error) {
	return findByID(ctx, p, id)
}

func (p *PubMed) search(ctx context.Context, query string, opts SearchOptions) (*AdapterResult, error) {
	start := time.Now()
	result := &AdapterResult{Source: model.SourcePubMed}
	if strings.TrimSpace(query) == "" {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	retmax := clampMax(opts.MaxResults, p.maxResults)

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("retmode", "json")
	q.Set("term", query)
	q.Set("retmax", strconv.Itoa(retmax))
	q.Set("retstart", strconv.Itoa(max(opts.Offset, 0)))
	if opts.SortHint == SortDate {
		q.Set("sort", "pub_date")
	} else {
		q.Set("sort", "relevance")
	}
	if opts.From != nil {
		q.Set("datetype", "pdat")
		q.Set("mindate", opts.From.Format("2006/01/02"))
	}
	if opts.To != nil {
		q.Set("datetype", "pdat")
		q.Set("maxdate", opts.To.Format("2006/01/02"))
	}
	if p.apiKey != "" {
		q.Set("api_key", p.apiKey)
	}

	var es esearchResponse
	if err := p.client.GetJSON(ctx, p.baseURL+"/esearch.fcgi?"+q.Encode(), nil, &es); err != nil {
		return nil, err
	}

	total, _ := strconv.Atoi(es.Result.Count)
	result.TotalFound = total
	if len(es.Result.IDList) == 0 {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	sq := url.Values{}
	sq.Set("db", "pubmed")
	sq.Set("retmode", "json")
	sq.Set("id", strings.Join(es.Result.IDList, ","))
	if p.apiKey != "" {
		sq.Set("api_key", p.apiKey)
	}

	var sum esummaryResponse
	if err := p.client.GetJSON(ctx, p.baseURL+"/esummary.fcgi?"+sq.Encode(), nil, &sum); err != nil {
		return nil, err
	}

	ac := newAccumulator(model.SourcePubMed)
	for _, id := range es.Result.IDList {
		raw, ok := sum.Result[id]
		if !ok {
			continue
		}
		var doc esummaryDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, apperr.Wrap(apperr.KindParse, string(model.SourcePubMed), "decode summary "+id, err)
		}
		for _, a := range doc.Authors {
			if a.AuthType != "" && a.AuthType != "Author" {
				continue
			}
			ac.add(a.Name, "", "", nil, []string{doc.FullJournalName}, nil)
		}
	}

	result.Authors = ac.authors()
	next := opts.Offset + len(es.Result.IDList)
	if next < total {
		result.HasMore = true
		result.NextOffset = &next
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// filterByName keeps authors whose name shares the query's family name.
// PubMed renders names as "Smith J", so exact comparison would drop
// legitimate matches.
func filterByName(authors []model.Author, query string) []model.Author {
	fields := strings.Fields(model.NormalizeName(query))
	if len(fields) == 0 {
		return nil
	}
	family := fields[len(fields)-1]
	out := make([]model.Author, 0, len(authors))
	for _, a := range authors {
		if strings.Contains(model.NormalizeName(a.Name), family) {
			out = append(out, a)
		}
	}
	return out
}
