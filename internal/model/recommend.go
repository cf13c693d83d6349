package model

// Filters narrows the validated candidate set. All fields are optional
// and ANDed together.
type Filters struct {
	MinPublications   *int           `json:"min_publications,omitempty"`
	MaxRetractions    *int           `json:"max_retractions,omitempty"`
	MinClinicalTrials *int           `json:"min_clinical_trials,omitempty"`
	Countries         []string       `json:"countries,omitempty"`
	Institutions      []string       `json:"institutions,omitempty"`
	ResearchAreas     []string       `json:"research_areas,omitempty"`
	OnlyValidated     bool           `json:"only_validated,omitempty"`
	ExcludeConflicts  []ConflictKind `json:"exclude_conflicts,omitempty"`
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.MinPublications == nil && f.MaxRetractions == nil &&
		f.MinClinicalTrials == nil && len(f.Countries) == 0 &&
		len(f.Institutions) == 0 && len(f.ResearchAreas) == 0 &&
		!f.OnlyValidated && len(f.ExcludeConflicts) == 0
}

// SortField enumerates the sortable candidate attributes.
type SortField string

const (
	SortByName             SortField = "name"
	SortByPublicationCount SortField = "publicationCount"
	SortByClinicalTrials   SortField = "clinicalTrials"
	SortByRetractions      SortField = "retractions"
	SortByCountry          SortField = "country"
	SortByInstitution      SortField = "institution"
)

// Sort is an explicit ordering request. The zero value means default
// ordering (relevance desc, publications desc, id asc).
type Sort struct {
	Field      SortField `json:"field"`
	Descending bool      `json:"descending"`
}

// ScoredCandidate is a candidate with its computed relevance score and
// primary affiliation, as returned by the recommendation query layer.
type ScoredCandidate struct {
	Candidate
	RelevanceScore     int          `json:"relevance_score"`
	PrimaryAffiliation *Affiliation `json:"primary_affiliation,omitempty"`
}

// SuggestionType enumerates filter-relaxation hints.
type SuggestionType string

const (
	SuggestRelaxPublications SuggestionType = "relax_publications"
	SuggestRelaxRetractions  SuggestionType = "relax_retractions"
	SuggestDropCountries     SuggestionType = "drop_countries"
	SuggestDropInstitutions  SuggestionType = "drop_institutions"
)

// Suggestion hints at a filter change likely to produce more results.
type Suggestion struct {
	Type            SuggestionType `json:"type"`
	Message         string         `json:"message"`
	SuggestedFilter *Filters       `json:"suggested_filter,omitempty"`
}

// RecommendationResponse is one page of filtered, sorted candidates.
type RecommendationResponse struct {
	Candidates     []ScoredCandidate `json:"candidates"`
	TotalCount     int               `json:"total_count"`    // pre-filter
	FilteredCount  int               `json:"filtered_count"` // post-filter
	Page           int               `json:"page"`
	Limit          int               `json:"limit"`
	AppliedFilters Filters           `json:"applied_filters"`
	SortOptions    []SortField       `json:"sort_options"`
	Suggestions    []Suggestion      `json:"suggestions,omitempty"`
}

// Range is a closed integer interval for UI filter bounds.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// FilterOptions describes the value space of the validated candidate set,
// for populating UI filters.
type FilterOptions struct {
	Countries          []string `json:"countries"`
	Institutions       []string `json:"institutions"`
	ResearchAreas      []string `json:"research_areas"`
	PublicationRange   Range    `json:"publication_range"`
	RetractionRange    Range    `json:"retraction_range"`
	ClinicalTrialRange Range    `json:"clinical_trial_range"`
}
