package recommend

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

func newTestService(t *testing.T) (*Service, *repo.Memory, uuid.UUID) {
	t.Helper()
	mem := repo.NewMemory()
	p, err := mem.CreateProcess(context.Background(), model.Process{
		OwnerID: "owner-1",
		Title:   "Sepsis biomarkers",
		Step:    model.StepRecommendations,
		Status:  model.ProcessProcessing,
	})
	require.NoError(t, err)
	return New(mem, nil, 0), mem, p.ID
}

func seedCandidate(t *testing.T, mem *repo.Memory, pid uuid.UUID, a model.Author, passed bool) {
	t.Helper()
	require.NoError(t, mem.SaveCandidate(context.Background(), model.Candidate{
		ProcessID:  pid,
		Author:     a,
		Role:       model.RoleCandidate,
		Source:     model.SourcePubMed,
		Validation: &model.ValidationRecord{Passed: passed},
	}))
}

func intp(v int) *int { return &v }

func TestRelevanceScore(t *testing.T) {
	tests := []struct {
		name string
		cand model.Candidate
		want int
	}{
		{
			"all components capped",
			model.Candidate{
				Author: model.Author{
					PublicationCount: 100, ClinicalTrials: 50,
					ResearchAreas: make([]string, 20), MeshTerms: make([]string, 20),
				},
				Validation: &model.ValidationRecord{Passed: true},
			},
			40 + 20 + 20 + 10 + 10,
		},
		{
			"typical candidate",
			model.Candidate{
				Author: model.Author{
					PublicationCount: 10, ClinicalTrials: 1, Retractions: 1,
					ResearchAreas: []string{"a", "b"}, MeshTerms: []string{"m"},
				},
				Validation: &model.ValidationRecord{Passed: true},
			},
			20 + 5 + 20 - 10 + 4 + 1,
		},
		{
			"clamped at zero",
			model.Candidate{Author: model.Author{Retractions: 9}},
			0,
		},
		{
			"unvalidated gets no pass bonus",
			model.Candidate{Author: model.Author{PublicationCount: 5}},
			10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, score(tt.cand).RelevanceScore)
		})
	}
}

func TestGetValidatedCandidatesExcludesManuscriptAuthors(t *testing.T) {
	svc, mem, pid := newTestService(t)
	seedCandidate(t, mem, pid, model.Author{ID: "pubmed-a", Name: "Jane Smith", PublicationCount: 8}, true)
	require.NoError(t, mem.SaveCandidate(context.Background(), model.Candidate{
		ProcessID: pid,
		Author:    model.Author{ID: "pubmed-ms", Name: "John Doe"},
		Role:      model.RoleManuscriptAuthor,
	}))

	got, err := svc.GetValidatedCandidates(context.Background(), pid)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pubmed-a", got[0].Author.ID)
	require.NotNil(t, got[0].Validation)
}

func TestGetRecommendationsSuggestionsWhenEmpty(t *testing.T) {
	svc, mem, pid := newTestService(t)
	for i := 0; i < 15; i++ {
		seedCandidate(t, mem, pid, model.Author{
			ID:               fmt.Sprintf("pubmed-%02d", i),
			Name:             fmt.Sprintf("Author %02d", i),
			PublicationCount: 10,
		}, true)
	}

	resp, err := svc.GetRecommendations(context.Background(), pid, model.Filters{MinPublications: intp(18)}, nil, 1, 20)
	require.NoError(t, err)

	assert.Equal(t, 15, resp.TotalCount)
	assert.Zero(t, resp.FilteredCount)
	assert.Empty(t, resp.Candidates)

	require.NotEmpty(t, resp.Suggestions)
	sug := resp.Suggestions[0]
	assert.Equal(t, model.SuggestRelaxPublications, sug.Type)
	require.NotNil(t, sug.SuggestedFilter)
	require.NotNil(t, sug.SuggestedFilter.MinPublications)
	assert.Equal(t, 13, *sug.SuggestedFilter.MinPublications)
}

func TestGetRecommendationsThinSuggestions(t *testing.T) {
	svc, mem, pid := newTestService(t)
	for i := 0; i < 12; i++ {
		pubs := 4
		if i < 2 {
			pubs = 30
		}
		seedCandidate(t, mem, pid, model.Author{
			ID:               fmt.Sprintf("pubmed-%02d", i),
			Name:             fmt.Sprintf("Author %02d", i),
			PublicationCount: pubs,
			Affiliations:     []model.Affiliation{{ID: "aff-1", InstitutionName: "Test University"}},
		}, true)
	}

	filters := model.Filters{MinPublications: intp(6), Institutions: []string{"Test"}}
	resp, err := svc.GetRecommendations(context.Background(), pid, filters, nil, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.FilteredCount)

	var types []model.SuggestionType
	for _, s := range resp.Suggestions {
		types = append(types, s.Type)
	}
	assert.Contains(t, types, model.SuggestRelaxPublications)
	assert.Contains(t, types, model.SuggestDropInstitutions)

	// The thin case floors the publication suggestion at 3.
	for _, s := range resp.Suggestions {
		if s.Type == model.SuggestRelaxPublications {
			assert.Equal(t, 3, *s.SuggestedFilter.MinPublications)
		}
	}
}

func TestGetRecommendationsNoSuggestionsWhenHealthy(t *testing.T) {
	svc, mem, pid := newTestService(t)
	for i := 0; i < 8; i++ {
		seedCandidate(t, mem, pid, model.Author{
			ID:               fmt.Sprintf("pubmed-%02d", i),
			Name:             fmt.Sprintf("Author %02d", i),
			PublicationCount: 10,
		}, true)
	}

	resp, err := svc.GetRecommendations(context.Background(), pid, model.Filters{MinPublications: intp(5)}, nil, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 8, resp.FilteredCount)
	assert.Empty(t, resp.Suggestions)
}

func TestGetRecommendationsFilters(t *testing.T) {
	svc, mem, pid := newTestService(t)
	seedCandidate(t, mem, pid, model.Author{
		ID: "pubmed-a", Name: "Jane Smith", PublicationCount: 20, ClinicalTrials: 3,
		Affiliations:  []model.Affiliation{{ID: "a1", InstitutionName: "Kyoto University", Country: "Japan"}},
		ResearchAreas: []string{"Oncology"},
	}, true)
	seedCandidate(t, mem, pid, model.Author{
		ID: "pubmed-b", Name: "John Doe", PublicationCount: 6, Retractions: 2,
		Affiliations: []model.Affiliation{{ID: "a2", InstitutionName: "MIT", Country: "USA"}},
	}, false)

	tests := []struct {
		name    string
		filters model.Filters
		wantIDs []string
	}{
		{"no filters", model.Filters{}, []string{"pubmed-a", "pubmed-b"}},
		{"min publications", model.Filters{MinPublications: intp(10)}, []string{"pubmed-a"}},
		{"max retractions", model.Filters{MaxRetractions: intp(0)}, []string{"pubmed-a"}},
		{"min clinical trials", model.Filters{MinClinicalTrials: intp(1)}, []string{"pubmed-a"}},
		{"country case-fold", model.Filters{Countries: []string{"japan"}}, []string{"pubmed-a"}},
		{"institution substring", model.Filters{Institutions: []string{"kyoto"}}, []string{"pubmed-a"}},
		{"institution reverse substring", model.Filters{Institutions: []string{"MIT and affiliates"}}, []string{"pubmed-b"}},
		{"research area", model.Filters{ResearchAreas: []string{"onco"}}, []string{"pubmed-a"}},
		{"only validated", model.Filters{OnlyValidated: true}, []string{"pubmed-a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.GetRecommendations(context.Background(), pid, tt.filters, nil, 1, 20)
			require.NoError(t, err)
			var got []string
			for _, c := range resp.Candidates {
				got = append(got, c.Author.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, got)
		})
	}
}

func TestGetRecommendationsExcludeConflicts(t *testing.T) {
	svc, mem, pid := newTestService(t)
	require.NoError(t, mem.SaveCandidate(context.Background(), model.Candidate{
		ProcessID: pid,
		Author:    model.Author{ID: "pubmed-x", Name: "Jane Smith", PublicationCount: 10},
		Role:      model.RoleCandidate,
		Validation: &model.ValidationRecord{
			Passed:    false,
			Conflicts: []model.ConflictKind{model.ConflictInstitutional},
		},
	}))
	seedCandidate(t, mem, pid, model.Author{ID: "pubmed-y", Name: "John Doe", PublicationCount: 10}, true)

	resp, err := svc.GetRecommendations(context.Background(), pid,
		model.Filters{ExcludeConflicts: []model.ConflictKind{model.ConflictInstitutional}}, nil, 1, 20)
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "pubmed-y", resp.Candidates[0].Author.ID)
}

func TestGetRecommendationsDefaultOrdering(t *testing.T) {
	svc, mem, pid := newTestService(t)
	// Same score except publication count, plus an id tiebreak pair.
	seedCandidate(t, mem, pid, model.Author{ID: "pubmed-b", Name: "B", PublicationCount: 5}, true)
	seedCandidate(t, mem, pid, model.Author{ID: "pubmed-a", Name: "A", PublicationCount: 5}, true)
	seedCandidate(t, mem, pid, model.Author{ID: "pubmed-c", Name: "C", PublicationCount: 30}, true)

	resp, err := svc.GetRecommendations(context.Background(), pid, model.Filters{}, nil, 1, 20)
	require.NoError(t, err)
	require.Len(t, resp.Candidates, 3)
	assert.Equal(t, "pubmed-c", resp.Candidates[0].Author.ID)
	assert.Equal(t, "pubmed-a", resp.Candidates[1].Author.ID)
	assert.Equal(t, "pubmed-b", resp.Candidates[2].Author.ID)
}

func TestGetRecommendationsExplicitSort(t *testing.T) {
	svc, mem, pid := newTestService(t)
	seedCandidate(t, mem, pid, model.Author{ID: "pubmed-a", Name: "Zoe", PublicationCount: 1}, true)
	seedCandidate(t, mem, pid, model.Author{ID: "pubmed-b", Name: "Amy", PublicationCount: 9}, true)

	resp, err := svc.GetRecommendations(context.Background(), pid, model.Filters{},
		&model.Sort{Field: model.SortByName}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, "Amy", resp.Candidates[0].Author.Name)

	resp, err = svc.GetRecommendations(context.Background(), pid, model.Filters{},
		&model.Sort{Field: model.SortByPublicationCount, Descending: true}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 9, resp.Candidates[0].Author.PublicationCount)
}

func TestGetRecommendationsPagination(t *testing.T) {
	svc, mem, pid := newTestService(t)
	for i := 0; i < 7; i++ {
		seedCandidate(t, mem, pid, model.Author{
			ID:   fmt.Sprintf("pubmed-%02d", i),
			Name: fmt.Sprintf("Author %02d", i),
		}, true)
	}

	resp, err := svc.GetRecommendations(context.Background(), pid, model.Filters{}, nil, 2, 3)
	require.NoError(t, err)
	assert.Len(t, resp.Candidates, 3)
	assert.Equal(t, 2, resp.Page)

	// page < 1 clamps to 1; limit > cap clamps to the cap.
	resp, err = svc.GetRecommendations(context.Background(), pid, model.Filters{}, nil, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, MaxLimit, resp.Limit)

	// A page past the end is empty, not an error.
	resp, err = svc.GetRecommendations(context.Background(), pid, model.Filters{}, nil, 9, 3)
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)
	assert.Equal(t, 7, resp.FilteredCount)
}

func TestGetFilterOptions(t *testing.T) {
	svc, mem, pid := newTestService(t)
	seedCandidate(t, mem, pid, model.Author{
		ID: "pubmed-a", Name: "Jane Smith", PublicationCount: 20, ClinicalTrials: 2,
		Affiliations:  []model.Affiliation{{ID: "a1", InstitutionName: "Kyoto University", Country: "Japan"}},
		ResearchAreas: []string{"Oncology"},
	}, true)
	seedCandidate(t, mem, pid, model.Author{
		ID: "pubmed-b", Name: "John Doe", PublicationCount: 4, Retractions: 1,
		Affiliations:  []model.Affiliation{{ID: "a2", InstitutionName: "MIT", Country: "USA"}},
		ResearchAreas: []string{"oncology", "Genomics"},
	}, true)

	opts, err := svc.GetFilterOptions(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, []string{"Japan", "USA"}, opts.Countries)
	assert.Equal(t, []string{"Kyoto University", "MIT"}, opts.Institutions)
	assert.Len(t, opts.ResearchAreas, 2, "areas dedupe case-insensitively")
	assert.Equal(t, model.Range{Min: 4, Max: 20}, opts.PublicationRange)
	assert.Equal(t, model.Range{Min: 0, Max: 1}, opts.RetractionRange)
	assert.Equal(t, model.Range{Min: 0, Max: 2}, opts.ClinicalTrialRange)
}

func TestGetFilterOptionsEmpty(t *testing.T) {
	svc, _, pid := newTestService(t)
	opts, err := svc.GetFilterOptions(context.Background(), pid)
	require.NoError(t, err)
	assert.Empty(t, opts.Countries)
	assert.Empty(t, opts.Institutions)
	assert.Empty(t, opts.ResearchAreas)
	assert.Equal(t, model.Range{}, opts.PublicationRange)
	assert.Equal(t, model.Range{}, opts.RetractionRange)
	assert.Equal(t, model.Range{}, opts.ClinicalTrialRange)
}
