package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

// UpsertAuthor inserts the author or merges it into the existing row
// under the monotonic-merge policy. The row is locked for the merge so
// concurrent upserts from different adapters cannot lose increments.
func (db *DB) UpsertAuthor(ctx context.Context, a model.Author) (model.Author, error) {
	var merged model.Author
	err := withLockRetry(ctx, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin upsert author tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		existing, err := scanAuthorRow(tx.QueryRow(ctx,
			`SELECT id, name, email, publication_count, clinical_trials, retractions,
			        research_areas, mesh_terms, affiliations
			 FROM authors WHERE id = $1 FOR UPDATE`, a.ID,
		))
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			merged = a
		case err != nil:
			return fmt.Errorf("storage: lock author: %w", err)
		default:
			merged = repo.MergeAuthor(existing, a)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO authors (id, name, email, publication_count, clinical_trials, retractions,
			                      research_areas, mesh_terms, affiliations, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name,
			   email = EXCLUDED.email,
			   publication_count = EXCLUDED.publication_count,
			   clinical_trials = EXCLUDED.clinical_trials,
			   retractions = EXCLUDED.retractions,
			   research_areas = EXCLUDED.research_areas,
			   mesh_terms = EXCLUDED.mesh_terms,
			   affiliations = EXCLUDED.affiliations,
			   updated_at = EXCLUDED.updated_at`,
			merged.ID, merged.Name, nullable(merged.Email),
			merged.PublicationCount, merged.ClinicalTrials, merged.Retractions,
			textArray(merged.ResearchAreas), textArray(merged.MeshTerms),
			affiliationsOrEmpty(merged.Affiliations), time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("storage: upsert author: %w", err)
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return model.Author{}, err
	}
	return merged, nil
}

// GetAuthor fetches a shared author row by id.
func (db *DB) GetAuthor(ctx context.Context, id string) (model.Author, error) {
	a, err := scanAuthorRow(db.pool.QueryRow(ctx,
		`SELECT id, name, email, publication_count, clinical_trials, retractions,
		        research_areas, mesh_terms, affiliations
		 FROM authors WHERE id = $1`, id,
	))
	if err != nil {
		return model.Author{}, fmt.Errorf("storage: get author: %w", mapNotFound(err))
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthorRow(row rowScanner) (model.Author, error) {
	var (
		a     model.Author
		email *string
	)
	err := row.Scan(&a.ID, &a.Name, &email, &a.PublicationCount, &a.ClinicalTrials,
		&a.Retractions, &a.ResearchAreas, &a.MeshTerms, &a.Affiliations)
	if err != nil {
		return model.Author{}, err
	}
	if email != nil {
		a.Email = *email
	}
	return a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func textArray(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func affiliationsOrEmpty(affs []model.Affiliation) []model.Affiliation {
	if affs == nil {
		return []model.Affiliation{}
	}
	return affs
}
