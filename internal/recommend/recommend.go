// Package recommend is the query layer over a process's candidate pool:
// relevance scoring, filtering, sorting, pagination, and the filter
// metadata the UI needs.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

const (
	// DefaultLimit is the page size when the caller supplies none.
	DefaultLimit = 20
	// MaxLimit caps the page size.
	MaxLimit = 100
)

// sortOptions is advertised on every response.
var sortOptions = []model.SortField{
	model.SortByName,
	model.SortByPublicationCount,
	model.SortByClinicalTrials,
	model.SortByRetractions,
	model.SortByCountry,
	model.SortByInstitution,
}

// Service answers recommendation queries for a process.
type Service struct {
	repo     repo.Repository
	logger   *slog.Logger
	limitCap int
}

// New creates a Service. limitCap bounds the page size; zero or negative
// selects MaxLimit.
func New(r repo.Repository, logger *slog.Logger, limitCap int) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if limitCap <= 0 {
		limitCap = MaxLimit
	}
	return &Service{repo: r, logger: logger, limitCap: limitCap}
}

// GetValidatedCandidates returns every reviewer candidate of the process
// (manuscript authors excluded) with its relevance score and primary
// affiliation computed.
func (s *Service) GetValidatedCandidates(ctx context.Context, processID uuid.UUID) ([]model.ScoredCandidate, error) {
	candidates, err := s.repo.ListCandidates(ctx, processID, nil)
	if err != nil {
		return nil, fmt.Errorf("recommend: list candidates: %w", err)
	}

	out := make([]model.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Role == model.RoleManuscriptAuthor {
			continue
		}
		out = append(out, score(c))
	}
	return out, nil
}

// GetRecommendations applies filters, sorting, and pagination over the
// scored candidate set. A query matching nothing returns an empty page
// plus relaxation suggestions, never an error.
func (s *Service) GetRecommendations(ctx context.Context, processID uuid.UUID, filters model.Filters, sortBy *model.Sort, page, limit int) (*model.RecommendationResponse, error) {
	all, err := s.GetValidatedCandidates(ctx, processID)
	if err != nil {
		return nil, err
	}

	filtered := applyFilters(all, filters)
	sortCandidates(filtered, sortBy)

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > s.limitCap {
		limit = s.limitCap
	}

	start := (page - 1) * limit
	end := min(start+limit, len(filtered))
	var pageSlice []model.ScoredCandidate
	if start < len(filtered) {
		pageSlice = filtered[start:end]
	}

	resp := &model.RecommendationResponse{
		Candidates:     pageSlice,
		TotalCount:     len(all),
		FilteredCount:  len(filtered),
		Page:           page,
		Limit:          limit,
		AppliedFilters: filters,
		SortOptions:    sortOptions,
		Suggestions:    suggest(filters, len(filtered), len(all)),
	}
	return resp, nil
}

// GetFilterOptions describes the value space of the candidate set so the
// UI can populate its filter controls.
func (s *Service) GetFilterOptions(ctx context.Context, processID uuid.UUID) (*model.FilterOptions, error) {
	all, err := s.GetValidatedCandidates(ctx, processID)
	if err != nil {
		return nil, err
	}

	opts := &model.FilterOptions{
		Countries:     []string{},
		Institutions:  []string{},
		ResearchAreas: []string{},
	}
	if len(all) == 0 {
		return opts, nil
	}

	countries := map[string]string{}
	institutions := map[string]string{}
	areas := map[string]string{}
	first := true
	for _, c := range all {
		a := c.Author
		for _, aff := range a.Affiliations {
			if aff.Country != "" {
				countries[strings.ToLower(aff.Country)] = aff.Country
			}
			if aff.InstitutionName != "" {
				institutions[strings.ToLower(aff.InstitutionName)] = aff.InstitutionName
			}
		}
		for _, ra := range a.ResearchAreas {
			if ra != "" {
				areas[strings.ToLower(ra)] = ra
			}
		}
		if first {
			opts.PublicationRange = model.Range{Min: a.PublicationCount, Max: a.PublicationCount}
			opts.RetractionRange = model.Range{Min: a.Retractions, Max: a.Retractions}
			opts.ClinicalTrialRange = model.Range{Min: a.ClinicalTrials, Max: a.ClinicalTrials}
			first = false
			continue
		}
		widen(&opts.PublicationRange, a.PublicationCount)
		widen(&opts.RetractionRange, a.Retractions)
		widen(&opts.ClinicalTrialRange, a.ClinicalTrials)
	}

	opts.Countries = sortedValues(countries)
	opts.Institutions = sortedValues(institutions)
	opts.ResearchAreas = sortedValues(areas)
	return opts, nil
}

func widen(r *model.Range, v int) {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

func sortedValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// score computes the transparent relevance score, clamped at zero.
func score(c model.Candidate) model.ScoredCandidate {
	a := c.Author
	s := min(a.PublicationCount*2, 40) +
		min(a.ClinicalTrials*5, 20) -
		a.Retractions*10 +
		min(len(a.ResearchAreas)*2, 10) +
		min(len(a.MeshTerms), 10)
	if c.Validation != nil && c.Validation.Passed {
		s += 20
	}
	if s < 0 {
		s = 0
	}

	sc := model.ScoredCandidate{Candidate: c, RelevanceScore: s}
	if len(a.Affiliations) > 0 {
		aff := a.Affiliations[0]
		sc.PrimaryAffiliation = &aff
	}
	return sc
}

func applyFilters(all []model.ScoredCandidate, f model.Filters) []model.ScoredCandidate {
	out := make([]model.ScoredCandidate, 0, len(all))
	for _, c := range all {
		if matches(c, f) {
			out = append(out, c)
		}
	}
	return out
}

func matches(c model.ScoredCandidate, f model.Filters) bool {
	a := c.Author
	if f.MinPublications != nil && a.PublicationCount < *f.MinPublications {
		return false
	}
	if f.MaxRetractions != nil && a.Retractions > *f.MaxRetractions {
		return false
	}
	if f.MinClinicalTrials != nil && a.ClinicalTrials < *f.MinClinicalTrials {
		return false
	}
	if len(f.Countries) > 0 && !matchesCountry(a, f.Countries) {
		return false
	}
	if len(f.Institutions) > 0 && !matchesSubstring(institutionNames(a), f.Institutions) {
		return false
	}
	if len(f.ResearchAreas) > 0 && !matchesSubstring(a.ResearchAreas, f.ResearchAreas) {
		return false
	}
	if f.OnlyValidated && (c.Validation == nil || !c.Validation.Passed) {
		return false
	}
	if len(f.ExcludeConflicts) > 0 && c.Validation != nil {
		for _, kind := range f.ExcludeConflicts {
			if c.Validation.HasConflict(kind) {
				return false
			}
		}
	}
	return true
}

func matchesCountry(a model.Author, countries []string) bool {
	for _, aff := range a.Affiliations {
		for _, want := range countries {
			if strings.EqualFold(strings.TrimSpace(aff.Country), strings.TrimSpace(want)) {
				return true
			}
		}
	}
	return false
}

func institutionNames(a model.Author) []string {
	out := make([]string, 0, len(a.Affiliations))
	for _, aff := range a.Affiliations {
		out = append(out, aff.InstitutionName)
	}
	return out
}

// matchesSubstring reports whether any value substring-matches any wanted
// term, in either direction, case-folded.
func matchesSubstring(values, wanted []string) bool {
	for _, v := range values {
		fv := strings.ToLower(strings.TrimSpace(v))
		if fv == "" {
			continue
		}
		for _, w := range wanted {
			fw := strings.ToLower(strings.TrimSpace(w))
			if fw == "" {
				continue
			}
			if strings.Contains(fv, fw) || strings.Contains(fw, fv) {
				return true
			}
		}
	}
	return false
}

func sortCandidates(cs []model.ScoredCandidate, by *model.Sort) {
	if by == nil || by.Field == "" {
		sort.SliceStable(cs, func(i, j int) bool {
			if cs[i].RelevanceScore != cs[j].RelevanceScore {
				return cs[i].RelevanceScore > cs[j].RelevanceScore
			}
			if cs[i].Author.PublicationCount != cs[j].Author.PublicationCount {
				return cs[i].Author.PublicationCount > cs[j].Author.PublicationCount
			}
			return cs[i].Author.ID < cs[j].Author.ID
		})
		return
	}

	field := by.Field
	desc := by.Descending
	sort.SliceStable(cs, func(i, j int) bool {
		si, sj := sortKeyString(cs[i], field), sortKeyString(cs[j], field)
		ni, nj := sortKeyInt(cs[i], field), sortKeyInt(cs[j], field)
		var less, equal bool
		switch field {
		case model.SortByName, model.SortByCountry, model.SortByInstitution:
			less, equal = si < sj, si == sj
		default:
			less, equal = ni < nj, ni == nj
		}
		if equal {
			return cs[i].Author.ID < cs[j].Author.ID
		}
		if desc {
			return !less
		}
		return less
	})
}

func sortKeyString(c model.ScoredCandidate, field model.SortField) string {
	switch field {
	case model.SortByName:
		return strings.ToLower(c.Author.Name)
	case model.SortByCountry:
		if c.PrimaryAffiliation != nil {
			return strings.ToLower(c.PrimaryAffiliation.Country)
		}
	case model.SortByInstitution:
		if c.PrimaryAffiliation != nil {
			return strings.ToLower(c.PrimaryAffiliation.InstitutionName)
		}
	}
	return ""
}

func sortKeyInt(c model.ScoredCandidate, field model.SortField) int {
	switch field {
	case model.SortByPublicationCount:
		return c.Author.PublicationCount
	case model.SortByClinicalTrials:
		return c.Author.ClinicalTrials
	case model.SortByRetractions:
		return c.Author.Retractions
	}
	return 0
}

// suggest proposes filter relaxations when the result set is empty, or
// thin relative to the pool.
func suggest(f model.Filters, filteredCount, totalCount int) []model.Suggestion {
	empty := filteredCount == 0
	thin := filteredCount > 0 && filteredCount < 5 && totalCount > 10
	if !empty && !thin {
		return nil
	}

	var out []model.Suggestion
	if f.MinPublications != nil && *f.MinPublications > 0 {
		floor := 0
		if thin {
			floor = 3
		}
		suggested := max(*f.MinPublications-5, floor)
		relaxed := f
		relaxed.MinPublications = &suggested
		out = append(out, model.Suggestion{
			Type:            model.SuggestRelaxPublications,
			Message:         fmt.Sprintf("Lower the minimum publication count to %d", suggested),
			SuggestedFilter: &relaxed,
		})
	}
	if f.MaxRetractions != nil && *f.MaxRetractions < 2 {
		suggested := 2
		relaxed := f
		relaxed.MaxRetractions = &suggested
		out = append(out, model.Suggestion{
			Type:            model.SuggestRelaxRetractions,
			Message:         "Allow up to 2 retractions",
			SuggestedFilter: &relaxed,
		})
	}
	if len(f.Countries) > 0 {
		relaxed := f
		relaxed.Countries = nil
		out = append(out, model.Suggestion{
			Type:            model.SuggestDropCountries,
			Message:         "Remove the country restriction",
			SuggestedFilter: &relaxed,
		})
	}
	if len(f.Institutions) > 0 && thin {
		relaxed := f
		relaxed.Institutions = nil
		out = append(out, model.Suggestion{
			Type:            model.SuggestDropInstitutions,
			Message:         "Remove the institution restriction",
			SuggestedFilter: &relaxed,
		})
	}
	return out
}
