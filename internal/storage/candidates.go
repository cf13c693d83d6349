package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

// SaveCandidate inserts or replaces a candidate row. The author snapshot
// is stored per process so merges on one process never leak into another.
func (db *DB) SaveCandidate(ctx context.Context, c model.Candidate) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO process_candidates (process_id, author_id, role, source, author, validation, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (process_id, author_id) DO UPDATE SET
		   role = EXCLUDED.role,
		   source = EXCLUDED.source,
		   author = EXCLUDED.author,
		   validation = EXCLUDED.validation,
		   updated_at = EXCLUDED.updated_at`,
		c.ProcessID, c.Author.ID, string(c.Role), string(c.Source), c.Author, c.Validation, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: save candidate: %w", err)
	}
	return nil
}

// GetCandidate fetches one candidate by its (process, author) key.
func (db *DB) GetCandidate(ctx context.Context, processID uuid.UUID, authorID string) (model.Candidate, error) {
	var c model.Candidate
	err := db.pool.QueryRow(ctx,
		`SELECT process_id, author_id, role, source, author, validation, created_at, updated_at
		 FROM process_candidates WHERE process_id = $1 AND author_id = $2`,
		processID, authorID,
	).Scan(&c.ProcessID, new(string), &c.Role, &c.Source, &c.Author, &c.Validation, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("storage: get candidate: %w", mapNotFound(err))
	}
	return c, nil
}

// ListCandidates returns the process's candidates in insertion order,
// optionally filtered by role.
func (db *DB) ListCandidates(ctx context.Context, processID uuid.UUID, role *model.CandidateRole) ([]model.Candidate, error) {
	query := `SELECT process_id, author_id, role, source, author, validation, created_at, updated_at
	          FROM process_candidates WHERE process_id = $1`
	args := []any{processID}
	if role != nil {
		query += ` AND role = $2`
		args = append(args, string(*role))
	}
	query += ` ORDER BY created_at, author_id`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list candidates: %w", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.ProcessID, new(string), &c.Role, &c.Source, &c.Author, &c.Validation, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateValidation sets the candidate's validation record.
func (db *DB) UpdateValidation(ctx context.Context, processID uuid.UUID, authorID string, rec *model.ValidationRecord) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE process_candidates SET validation = $3, updated_at = $4
		 WHERE process_id = $1 AND author_id = $2`,
		processID, authorID, rec, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: update validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: update validation: %w", repo.ErrNotFound)
	}
	return nil
}

// ClearValidation removes every validation record for the process.
func (db *DB) ClearValidation(ctx context.Context, processID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE process_candidates SET validation = NULL, updated_at = $2 WHERE process_id = $1`,
		processID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: clear validation: %w", err)
	}
	return nil
}
