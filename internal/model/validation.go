package model

import "time"

// ConflictKind enumerates the conflict-of-interest categories a candidate
// can be flagged with.
type ConflictKind string

const (
	ConflictManuscriptAuthor    ConflictKind = "MANUSCRIPT_AUTHOR"
	ConflictCoAuthor            ConflictKind = "CO_AUTHOR"
	ConflictInstitutional       ConflictKind = "INSTITUTIONAL"
	ConflictRecentCollaboration ConflictKind = "RECENT_COLLABORATION"
)

// StepResult records the outcome of one validation step. All steps run
// even after an earlier failure so the UI can surface every reason at once.
type StepResult struct {
	StepName string            `json:"step_name"`
	Passed   bool              `json:"passed"`
	Message  string            `json:"message,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// PublicationMetrics summarises a candidate's publication evidence.
// RecentPublications is floor(publicationCount * 0.3), a documented
// approximation pending real date-windowed counts.
type PublicationMetrics struct {
	TotalPublications  int `json:"total_publications"`
	RecentPublications int `json:"recent_publications"`
}

// ValidationRecord is the persisted outcome of running the validation
// pipeline against one candidate. Nil until validation runs.
type ValidationRecord struct {
	Passed          bool               `json:"passed"`
	Conflicts       []ConflictKind     `json:"conflicts,omitempty"`
	RetractionFlags []string           `json:"retraction_flags,omitempty"`
	Metrics         PublicationMetrics `json:"metrics"`
	Steps           []StepResult       `json:"steps"`
	ValidatedAt     time.Time          `json:"validated_at"`
}

// HasConflict reports whether the record carries the given conflict kind.
func (r *ValidationRecord) HasConflict(kind ConflictKind) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Conflicts {
		if c == kind {
			return true
		}
	}
	return false
}

// ValidationConfig holds the pipeline thresholds.
type ValidationConfig struct {
	MinPublications            int  `json:"min_publications"`
	MaxRetractions             int  `json:"max_retractions"`
	MinRecentPublications      int  `json:"min_recent_publications"`
	RecentYears                int  `json:"recent_years"`
	CheckInstitutionalConflict bool `json:"check_institutional_conflicts"`
	CheckCoAuthorConflict      bool `json:"check_co_author_conflicts"`
	CollaborationYears         int  `json:"collaboration_years"`
}

// DefaultValidationConfig returns the default pipeline thresholds.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinPublications:            5,
		MaxRetractions:             0,
		MinRecentPublications:      2,
		RecentYears:                5,
		CheckInstitutionalConflict: true,
		CheckCoAuthorConflict:      true,
		CollaborationYears:         3,
	}
}

// ProcessValidationResult summarises one validation run over a process.
type ProcessValidationResult struct {
	TotalCandidates     int       `json:"total_candidates"`
	ValidatedCandidates int       `json:"validated_candidates"`
	PassedCandidates    int       `json:"passed_candidates"`
	ValidatedAt         time.Time `json:"validated_at"`
}
