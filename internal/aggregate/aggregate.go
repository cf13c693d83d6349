// Package aggregate merges author records found by the source adapters
// into a per-process candidate pool.
//
// Records from different publishers describing the same person are
// collapsed onto one candidate. The match key is the lowercased email
// when the record carries a well-formed address, otherwise the
// whitespace-normalized, case-folded name. Numeric metrics merge
// monotonically and string sets union, so ingesting the same result
// twice is a no-op.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

// Aggregator folds adapter results into the candidate pool of a process.
type Aggregator struct {
	repo   repo.Repository
	logger *slog.Logger

	// Serializes the read-merge-write cycle. Adapters for one process
	// finish concurrently and would otherwise race on the pool index.
	mu sync.Mutex
}

// New creates an Aggregator backed by the given repository.
func New(r repo.Repository, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{repo: r, logger: logger}
}

// Ingest merges the authors found by one source into the candidate pool
// of the process. It returns how many candidates were newly created;
// authors matching an existing candidate are merged in place and keep
// their current role.
func (a *Aggregator) Ingest(ctx context.Context, processID uuid.UUID, source model.SourceID, authors []model.Author) (int, error) {
	if len(authors) == 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	existing, err := a.repo.ListCandidates(ctx, processID, nil)
	if err != nil {
		return 0, fmt.Errorf("aggregate: list candidates: %w", err)
	}
	index := buildIndex(existing)

	added := 0
	now := time.Now().UTC()
	for _, author := range authors {
		key := MatchKey(author)
		if key == "" {
			continue
		}

		cur, ok := index[key]
		if !ok {
			// An email-bearing record still matches a name-only candidate
			// for the same person.
			if name := model.NormalizeName(author.Name); name != "" {
				cur, ok = index["name:"+name]
			}
		}
		if ok {
			merged := cur
			merged.Author = repo.MergeAuthor(cur.Author, author)
			merged.UpdatedAt = now
			if _, err := a.repo.UpsertAuthor(ctx, merged.Author); err != nil {
				return added, fmt.Errorf("aggregate: upsert author %s: %w", merged.Author.ID, err)
			}
			if err := a.repo.SaveCandidate(ctx, merged); err != nil {
				return added, fmt.Errorf("aggregate: save candidate %s: %w", merged.Author.ID, err)
			}
			index[key] = merged
			if name := model.NormalizeName(merged.Author.Name); name != "" {
				index["name:"+name] = merged
			}
			continue
		}

		stored, err := a.repo.UpsertAuthor(ctx, author)
		if err != nil {
			return added, fmt.Errorf("aggregate: upsert author %s: %w", author.ID, err)
		}
		cand := model.Candidate{
			ProcessID: processID,
			Author:    stored,
			Role:      model.RoleCandidate,
			Source:    source,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.repo.SaveCandidate(ctx, cand); err != nil {
			return added, fmt.Errorf("aggregate: save candidate %s: %w", author.ID, err)
		}
		index[key] = cand
		if name := model.NormalizeName(cand.Author.Name); name != "" {
			index["name:"+name] = cand
		}
		added++
	}

	a.logger.DebugContext(ctx, "ingested adapter result",
		"process_id", processID,
		"source", string(source),
		"received", len(authors),
		"added", added,
	)
	return added, nil
}

// MatchKey returns the identity key used to collapse author records:
// the lowercased email when well formed, otherwise the normalized name.
// An empty key means the record carries no usable identity.
func MatchKey(a model.Author) string {
	if email := strings.ToLower(strings.TrimSpace(a.Email)); email != "" {
		if _, err := mail.ParseAddress(email); err == nil {
			return "email:" + email
		}
	}
	if name := model.NormalizeName(a.Name); name != "" {
		return "name:" + name
	}
	return ""
}

// DedupeByName collapses a result list on normalized name. For each
// person the record with the highest publication count wins, and the
// affiliation sets of all collapsed records are unioned onto it. Order
// of first appearance is preserved. Used for manual by-name search
// results that are shown without being persisted.
func DedupeByName(authors []model.Author) []model.Author {
	byName := make(map[string]int, len(authors))
	out := make([]model.Author, 0, len(authors))
	for _, a := range authors {
		name := model.NormalizeName(a.Name)
		if name == "" {
			continue
		}
		if i, ok := byName[name]; ok {
			kept := out[i]
			if a.PublicationCount > kept.PublicationCount {
				a.Affiliations = model.MergeAffiliations(a.Affiliations, kept.Affiliations)
				out[i] = a
			} else {
				kept.Affiliations = model.MergeAffiliations(kept.Affiliations, a.Affiliations)
				out[i] = kept
			}
			continue
		}
		byName[name] = len(out)
		out = append(out, a)
	}
	return out
}

func buildIndex(candidates []model.Candidate) map[string]model.Candidate {
	index := make(map[string]model.Candidate, len(candidates))
	for _, c := range candidates {
		if key := MatchKey(c.Author); key != "" {
			index[key] = c
		}
		// Index by name as well so an email-bearing record later merges
		// with a name-only record of the same person.
		if name := model.NormalizeName(c.Author.Name); name != "" {
			nameKey := "name:" + name
			if _, ok := index[nameKey]; !ok {
				index[nameKey] = c
			}
		}
	}
	return index
}
