package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceID identifies an external bibliographic database.
type SourceID string

const (
	SourcePubMed        SourceID = "PUBMED"
	SourceElsevier      SourceID = "ELSEVIER"
	SourceWiley         SourceID = "WILEY"
	SourceTaylorFrancis SourceID = "TAYLOR_FRANCIS"
)

// SearchTerms is the neutral query each adapter translates into its
// source-specific request. BooleanQueries, when present, override query
// synthesis for the keyed source.
type SearchTerms struct {
	Keywords       []string            `json:"keywords"`
	MeshTerms      []string            `json:"mesh_terms,omitempty"`
	BooleanQueries map[SourceID]string `json:"boolean_queries,omitempty"`
}

// SearchState enumerates the states of a search, both process-wide and
// per-database.
type SearchState string

const (
	SearchPending   SearchState = "PENDING"
	SearchSearching SearchState = "SEARCHING"
	SearchCompleted SearchState = "COMPLETED"
	SearchError     SearchState = "ERROR"
)

// Terminal reports whether the state is COMPLETED or ERROR.
func (s SearchState) Terminal() bool {
	return s == SearchCompleted || s == SearchError
}

// DatabaseProgress is one adapter's slot in a SearchStatus.
type DatabaseProgress struct {
	State        SearchState `json:"state"`
	Percent      int         `json:"percent"` // 0-100
	AuthorsFound int         `json:"authors_found"`
	Error        string      `json:"error,omitempty"`
	StartTime    time.Time   `json:"start_time,omitempty"`
	EndTime      time.Time   `json:"end_time,omitempty"`
}

// SearchStatus tracks one federated search. Individual adapter failures
// never escalate: the overall state still reaches COMPLETED, and ERROR is
// reserved for the orchestrator itself failing before dispatch.
type SearchStatus struct {
	ProcessID         uuid.UUID                     `json:"process_id"`
	State             SearchState                   `json:"state"`
	Databases         map[SourceID]DatabaseProgress `json:"databases"`
	TotalAuthorsFound int                           `json:"total_authors_found"`
	StartTime         time.Time                     `json:"start_time"`
	EndTime           time.Time                     `json:"end_time,omitempty"`
}

// Clone deep-copies the status so readers never share the registry's map.
func (s *SearchStatus) Clone() *SearchStatus {
	if s == nil {
		return nil
	}
	out := *s
	out.Databases = make(map[SourceID]DatabaseProgress, len(s.Databases))
	for k, v := range s.Databases {
		out.Databases[k] = v
	}
	return &out
}
