package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/resilience"
)

const (
	crossrefDefaultBaseURL = "https://api.crossref.org"
	crossrefMinDelay       = time.Second
	crossrefMaxResults     = 1000 // works endpoint rows ceiling

	// Crossref member ids for the publishers served through this adapter.
	memberWiley         = "311"
	memberTaylorFrancis = "301"
)

// Crossref searches the works endpoint filtered to one publisher member.
// Wiley and Taylor & Francis are both served by this adapter with
// different member ids.
type Crossref struct {
	source     model.SourceID
	member     string
	baseURL    string
	contact    string
	maxResults int
	client     *resilience.Client
}

// NewWiley creates the Crossref adapter filtered to Wiley publications.
func NewWiley(cfg Config) *Crossref {
	return newCrossref(model.SourceWiley, memberWiley, cfg)
}

// NewTaylorFrancis creates the Crossref adapter filtered to Taylor &
// Francis publications.
func NewTaylorFrancis(cfg Config) *Crossref {
	return newCrossref(model.SourceTaylorFrancis, memberTaylorFrancis, cfg)
}

func newCrossref(source model.SourceID, member string, cfg Config) *Crossref {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = crossrefDefaultBaseURL
	}
	return &Crossref{
		source:     source,
		member:     member,
		baseURL:    baseURL,
		contact:    cfg.Contact,
		maxResults: clampMax(cfg.MaxResults, crossrefMaxResults),
		client: resilience.NewClient(resilience.ClientConfig{
			Source:      string(source),
			UserAgent:   cfg.userAgent(),
			MinInterval: crossrefMinDelay,
			Retry:       cfg.Retry,
			Breaker:     cfg.Breaker,
			HTTPClient:  cfg.HTTPClient,
			CallLog:     cfg.CallLog,
			Logger:      cfg.logger(),
		}),
	}
}

// Source returns WILEY or TAYLOR_FRANCIS.
func (c *Crossref) Source() model.SourceID { return c.source }

// Client exposes the adapter's resilience stack for health reporting.
func (c *Crossref) Client() *resilience.Client { return c.client }

type crossrefResponse struct {
	Message struct {
		TotalResults int            `json:"total-results"`
		Items        []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	Title   []string `json:"title"`
	Subject []string `json:"subject"`
	Authors []struct {
		Given        string `json:"given"`
		Family       string `json:"family"`
		ORCID        string `json:"ORCID"`
		Affiliations []struct {
			Name string `json:"name"`
		} `json:"affiliation"`
	} `json:"author"`
}

// SearchAuthors queries the works endpoint with title/abstract clauses.
func (c *Crossref) SearchAuthors(ctx context.Context, terms model.SearchTerms, opts SearchOptions) (*AdapterResult, error) {
	query := BuildQuery(c.source, terms)
	return c.search(ctx, "query", query, opts)
}

// SearchByName uses the dedicated author query field.
func (c *Crossref) SearchByName(ctx context.Context, name string, opts SearchOptions) ([]model.Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	res, err := c.search(ctx, "query.author", name, opts)
	if err != nil {
		return nil, err
	}
	return filterByName(res.Authors, name), nil
}

// SearchByEmail returns empty: Crossref does not index author emails.
func (c *Crossref) SearchByEmail(context.Context, string) ([]model.Author, error) {
	return nil, nil
}

// GetAuthorProfile resolves a synthetic candidate id, or nil if unknown.
func (c *Crossref) GetAuthorProfile(ctx context.Context, id string) (*model.Author, error) {
	return findByID(ctx, c, id)
}

func (c *Crossref) search(ctx context.Context, queryParam, query string, opts SearchOptions) (*AdapterResult, error) {
	start := time.Now()
	result := &AdapterResult{Source: c.source}
	if strings.TrimSpace(query) == "" {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	rows := clampMax(opts.MaxResults, c.maxResults)

	filters := []string{"member:" + c.member}
	if opts.From != nil {
		filters = append(filters, "from-pub-date:"+opts.From.Format("2006-01-02"))
	}
	if opts.To != nil {
		filters = append(filters, "until-pub-date:"+opts.To.Format("2006-01-02"))
	}

	q := url.Values{}
	q.Set(queryParam, query)
	q.Set("filter", strings.Join(filters, ","))
	q.Set("rows", strconv.Itoa(rows))
	q.Set("offset", strconv.Itoa(max(opts.Offset, 0)))
	if opts.SortHint == SortDate {
		q.Set("sort", "published")
		q.Set("order", "desc")
	}
	if c.contact != "" {
		q.Set("mailto", c.contact)
	}

	var resp crossrefResponse
	if err := c.client.GetJSON(ctx, c.baseURL+"/works?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	result.TotalFound = resp.Message.TotalResults

	ac := newAccumulator(c.source)
	for _, work := range resp.Message.Items {
		for _, a := range work.Authors {
			name := strings.TrimSpace(a.Given + " " + a.Family)
			if name == "" {
				continue
			}
			affs := make([]model.Affiliation, 0, len(a.Affiliations))
			for _, af := range a.Affiliations {
				if af.Name == "" {
					continue
				}
				affs = append(affs, model.Affiliation{
					ID:              SyntheticAffiliationID(af.Name),
					InstitutionName: af.Name,
				})
			}
			// Crossref exposes no email; an ORCID-derived placeholder is
			// carried for display. Validation never uses it as a match key.
			email := orcidEmail(a.ORCID)
			ac.add(name, a.ORCID, email, affs, work.Subject, nil)
		}
	}

	result.Authors = ac.authors()
	fetched := opts.Offset + len(resp.Message.Items)
	if fetched < resp.Message.TotalResults && len(resp.Message.Items) > 0 {
		result.HasMore = true
		result.NextOffset = &fetched
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// orcidEmail turns "https://orcid.org/0000-0002-1825-0097" into
// "0000-0002-1825-0097@orcid.org", or "" when no ORCID is present.
func orcidEmail(orcid string) string {
	if orcid == "" {
		return ""
	}
	if idx := strings.LastIndexByte(orcid, '/'); idx >= 0 {
		orcid = orcid[idx+1:]
	}
	if orcid == "" {
		return ""
	}
	return orcid + "@orcid.org"
}
