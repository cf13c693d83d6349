// Package model defines the domain types shared across the engine:
// processes, manuscript metadata, authors, candidates, search state,
// validation records, and recommendation queries.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessStep enumerates the workflow steps a process advances through.
type ProcessStep string

const (
	StepUpload             ProcessStep = "UPLOAD"
	StepMetadataExtraction ProcessStep = "METADATA_EXTRACTION"
	StepKeywordEnhancement ProcessStep = "KEYWORD_ENHANCEMENT"
	StepDatabaseSearch     ProcessStep = "DATABASE_SEARCH"
	StepManualSearch       ProcessStep = "MANUAL_SEARCH"
	StepValidation         ProcessStep = "VALIDATION"
	StepRecommendations    ProcessStep = "RECOMMENDATIONS"
	StepShortlist          ProcessStep = "SHORTLIST"
	StepExport             ProcessStep = "EXPORT"
)

// stepOrder maps each step to its position in the workflow.
var stepOrder = map[ProcessStep]int{
	StepUpload:             0,
	StepMetadataExtraction: 1,
	StepKeywordEnhancement: 2,
	StepDatabaseSearch:     3,
	StepManualSearch:       4,
	StepValidation:         5,
	StepRecommendations:    6,
	StepShortlist:          7,
	StepExport:             8,
}

// Ordinal returns the step's position, or -1 for an unknown step.
func (s ProcessStep) Ordinal() int {
	if n, ok := stepOrder[s]; ok {
		return n
	}
	return -1
}

// ProcessStatus enumerates the coarse lifecycle states of a process.
type ProcessStatus string

const (
	ProcessCreated    ProcessStatus = "CREATED"
	ProcessProcessing ProcessStatus = "PROCESSING"
	ProcessSearching  ProcessStatus = "SEARCHING"
	ProcessValidating ProcessStatus = "VALIDATING"
	ProcessCompleted  ProcessStatus = "COMPLETED"
	ProcessError      ProcessStatus = "ERROR"
)

// Process is the unit of work: one manuscript moving through search,
// validation, and shortlisting. A process advances monotonically through
// steps; regressions happen only via explicit revalidation.
type Process struct {
	ID        uuid.UUID          `json:"id"`
	OwnerID   string             `json:"owner_id"`
	Title     string             `json:"title"`
	Step      ProcessStep        `json:"step"`
	Status    ProcessStatus      `json:"status"`
	Metadata  ManuscriptMetadata `json:"metadata"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ManuscriptMetadata is the extracted manuscript description that seeds
// the federated search. Keywords are ordered and unique after case-fold.
type ManuscriptMetadata struct {
	Title          string        `json:"title"`
	Authors        []Author      `json:"authors"`
	Affiliations   []Affiliation `json:"affiliations"`
	Abstract       string        `json:"abstract"`
	Keywords       []string      `json:"keywords"`
	PrimaryFocus   string        `json:"primary_focus,omitempty"`
	SecondaryFocus []string      `json:"secondary_focus,omitempty"`
}

// NormalizeKeywords deduplicates keywords case-insensitively while
// preserving first-occurrence order.
func (m *ManuscriptMetadata) NormalizeKeywords() {
	seen := make(map[string]bool, len(m.Keywords))
	out := m.Keywords[:0]
	for _, kw := range m.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		folded := strings.ToLower(kw)
		if seen[folded] {
			continue
		}
		seen[folded] = true
		out = append(out, kw)
	}
	m.Keywords = out
}
