package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

// CreateShortlist inserts the shortlist and flips each member candidate's
// role to SHORTLISTED in a single transaction. A member without a
// candidate row aborts the whole operation.
func (db *DB) CreateShortlist(ctx context.Context, s model.Shortlist) (model.Shortlist, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.AuthorIDs == nil {
		s.AuthorIDs = []string{}
	}

	err := withLockRetry(ctx, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin shortlist tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		var members int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM process_candidates WHERE process_id = $1 AND author_id = ANY($2)`,
			s.ProcessID, s.AuthorIDs,
		).Scan(&members); err != nil {
			return fmt.Errorf("storage: count shortlist members: %w", err)
		}
		if members != len(uniqueStrings(s.AuthorIDs)) {
			return fmt.Errorf("storage: create shortlist: unknown member: %w", repo.ErrNotFound)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO shortlists (id, process_id, name, author_ids, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			s.ID, s.ProcessID, s.Name, s.AuthorIDs, s.CreatedAt,
		); err != nil {
			return fmt.Errorf("storage: insert shortlist: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE process_candidates SET role = $3, updated_at = $4
			 WHERE process_id = $1 AND author_id = ANY($2)`,
			s.ProcessID, s.AuthorIDs, string(model.RoleShortlisted), time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("storage: shortlist role update: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return model.Shortlist{}, err
	}
	return s, nil
}

// ListShortlists returns the process's shortlists, oldest first.
func (db *DB) ListShortlists(ctx context.Context, processID uuid.UUID) ([]model.Shortlist, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, process_id, name, author_ids, created_at
		 FROM shortlists WHERE process_id = $1 ORDER BY created_at, id`,
		processID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list shortlists: %w", err)
	}
	defer rows.Close()

	var out []model.Shortlist
	for rows.Next() {
		var s model.Shortlist
		if err := rows.Scan(&s.ID, &s.ProcessID, &s.Name, &s.AuthorIDs, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan shortlist: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func uniqueStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
