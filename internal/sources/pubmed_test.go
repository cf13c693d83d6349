package sources

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/resilience"
)

func fastRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

const esearchBody = `{"esearchresult":{"count":"2","idlist":["111","222"]}}`

const esummaryBody = `{
	"result": {
		"uids": ["111", "222"],
		"111": {
			"title": "Checkpoint inhibitors in glioblastoma",
			"fulljournalname": "Journal of Neuro-Oncology",
			"authors": [
				{"name": "Smith J", "authtype": "Author"},
				{"name": "Doe A", "authtype": "Author"}
			]
		},
		"222": {
			"title": "CAR-T approaches in glioma",
			"fulljournalname": "Neuro-Oncology Advances",
			"authors": [
				{"name": "Smith J", "authtype": "Author"},
				{"name": "CollabGroup", "authtype": "CollectiveName"}
			]
		}
	}
}`

func newPubMedServer(t *testing.T) (*httptest.Server, *PubMed) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch.fcgi":
			_, _ = w.Write([]byte(esearchBody))
		case "/esummary.fcgi":
			_, _ = w.Write([]byte(esummaryBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	p := NewPubMed(Config{
		BaseURL: srv.URL,
		Retry:   fastRetry(),
		Logger:  slog.New(slog.DiscardHandler),
	})
	return srv, p
}

func TestPubMedSearchAuthors(t *testing.T) {
	_, p := newPubMedServer(t)

	res, err := p.SearchAuthors(context.Background(), model.SearchTerms{Keywords: []string{"glioblastoma"}}, SearchOptions{MaxResults: 10})
	require.NoError(t, err)

	assert.Equal(t, model.SourcePubMed, res.Source)
	assert.Equal(t, 2, res.TotalFound)
	assert.False(t, res.HasMore)

	// "Smith J" appears on both publications: accumulated, not duplicated.
	require.Len(t, res.Authors, 2)
	smith := res.Authors[0]
	assert.Equal(t, "Smith J", smith.Name)
	assert.Equal(t, 2, smith.PublicationCount)
	assert.Equal(t, []string{"Journal of Neuro-Oncology", "Neuro-Oncology Advances"}, smith.ResearchAreas)

	doe := res.Authors[1]
	assert.Equal(t, "Doe A", doe.Name)
	assert.Equal(t, 1, doe.PublicationCount)
}

func TestPubMedEmptyQuerySkipsNetwork(t *testing.T) {
	p := NewPubMed(Config{BaseURL: "http://127.0.0.1:1", Retry: fastRetry(), Logger: slog.New(slog.DiscardHandler)})
	res, err := p.SearchAuthors(context.Background(), model.SearchTerms{}, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Authors)
	assert.Zero(t, res.TotalFound)
}

func TestPubMedAPIKeyForwarded(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		_, _ = w.Write([]byte(`{"esearchresult":{"count":"0","idlist":[]}}`))
	}))
	defer srv.Close()

	p := NewPubMed(Config{BaseURL: srv.URL, APIKey: "k123", Retry: fastRetry(), Logger: slog.New(slog.DiscardHandler)})
	_, err := p.SearchAuthors(context.Background(), model.SearchTerms{Keywords: []string{"x"}}, SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "k123", gotKey)
}

func TestPubMedSearchByNameFiltersFamilyName(t *testing.T) {
	_, p := newPubMedServer(t)

	authors, err := p.SearchByName(context.Background(), "Jane Smith", SearchOptions{})
	require.NoError(t, err)
	// Only "Smith J" survives the family-name filter; "Doe A" was a co-author.
	require.Len(t, authors, 1)
	assert.Equal(t, "Smith J", authors[0].Name)
}

func TestPubMedGetAuthorProfile(t *testing.T) {
	_, p := newPubMedServer(t)

	id := SyntheticAuthorID(model.SourcePubMed, "Smith J", "")
	got, err := p.GetAuthorProfile(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)

	missing, err := p.GetAuthorProfile(context.Background(), "pubmed-AAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
