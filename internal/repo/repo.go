// Package repo defines the persistence port consumed by the engine and an
// in-memory implementation used by tests and dependency-free deployments.
//
// The PostgreSQL implementation lives in internal/storage; the core never
// imports it directly.
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/refmatch/refmatch/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("repo: not found")

// Repository is the persistence port for processes, candidates, validation
// records, authors, and shortlists.
//
// Implementations must make CreateShortlist atomic: the shortlist row and
// the role reassignment of its members commit together. Author upserts use
// monotonic-merge semantics: publication counts only increase, and string
// sets only grow.
type Repository interface {
	// Processes.
	CreateProcess(ctx context.Context, p model.Process) (model.Process, error)
	GetProcess(ctx context.Context, id uuid.UUID) (model.Process, error)
	UpdateProcess(ctx context.Context, p model.Process) error

	// Candidates. (processID, authorID) is the unique key.
	GetCandidate(ctx context.Context, processID uuid.UUID, authorID string) (model.Candidate, error)
	SaveCandidate(ctx context.Context, c model.Candidate) error
	ListCandidates(ctx context.Context, processID uuid.UUID, role *model.CandidateRole) ([]model.Candidate, error)

	// Validation records, persisted per candidate.
	UpdateValidation(ctx context.Context, processID uuid.UUID, authorID string, rec *model.ValidationRecord) error
	ClearValidation(ctx context.Context, processID uuid.UUID) error

	// Shared authors with monotonic metric merging.
	UpsertAuthor(ctx context.Context, a model.Author) (model.Author, error)

	// Shortlists. CreateShortlist also flips each member candidate's role
	// to SHORTLISTED, atomically and idempotently.
	CreateShortlist(ctx context.Context, s model.Shortlist) (model.Shortlist, error)
	ListShortlists(ctx context.Context, processID uuid.UUID) ([]model.Shortlist, error)
}

// MergeAuthor applies the monotonic-merge policy: counts only increase,
// sets only grow, and identity fields keep their first non-empty value.
// Shared by the memory and PostgreSQL implementations.
func MergeAuthor(existing, incoming model.Author) model.Author {
	out := existing
	if out.Name == "" {
		out.Name = incoming.Name
	}
	if out.Email == "" {
		out.Email = incoming.Email
	}
	if incoming.PublicationCount > out.PublicationCount {
		out.PublicationCount = incoming.PublicationCount
	}
	if incoming.ClinicalTrials > out.ClinicalTrials {
		out.ClinicalTrials = incoming.ClinicalTrials
	}
	if incoming.Retractions > out.Retractions {
		out.Retractions = incoming.Retractions
	}
	out.ResearchAreas = model.MergeStringSets(out.ResearchAreas, incoming.ResearchAreas)
	out.MeshTerms = model.MergeStringSets(out.MeshTerms, incoming.MeshTerms)
	out.Affiliations = model.MergeAffiliations(out.Affiliations, incoming.Affiliations)
	return out
}
