package model

import (
	"time"

	"github.com/google/uuid"
)

// CandidateRole marks how an author relates to a process.
type CandidateRole string

const (
	RoleManuscriptAuthor CandidateRole = "MANUSCRIPT_AUTHOR"
	RoleCandidate        CandidateRole = "CANDIDATE"
	RoleShortlisted      CandidateRole = "SHORTLISTED"
)

// Candidate binds an Author to a Process. (ProcessID, Author.ID) is unique.
// Candidates are never removed once created; only the role changes.
type Candidate struct {
	ProcessID  uuid.UUID         `json:"process_id"`
	Author     Author            `json:"author"`
	Role       CandidateRole     `json:"role"`
	Source     SourceID          `json:"source,omitempty"` // adapter that first produced this candidate
	Validation *ValidationRecord `json:"validation,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Shortlist is a named, ordered selection of candidates for a process.
type Shortlist struct {
	ID        uuid.UUID `json:"id"`
	ProcessID uuid.UUID `json:"process_id"`
	Name      string    `json:"name"`
	AuthorIDs []string  `json:"author_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewerCount is the number of reviewers on the shortlist.
func (s Shortlist) ReviewerCount() int { return len(s.AuthorIDs) }
