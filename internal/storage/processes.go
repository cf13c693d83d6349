package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/repo"
)

// CreateProcess inserts a new process, assigning an id and timestamps
// when absent.
func (db *DB) CreateProcess(ctx context.Context, p model.Process) (model.Process, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Step == "" {
		p.Step = model.StepUpload
	}
	if p.Status == "" {
		p.Status = model.ProcessCreated
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO processes (id, owner_id, title, step, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OwnerID, p.Title, string(p.Step), string(p.Status), p.Metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return model.Process{}, fmt.Errorf("storage: create process: %w", err)
	}
	return p, nil
}

// GetProcess fetches a process by id.
func (db *DB) GetProcess(ctx context.Context, id uuid.UUID) (model.Process, error) {
	var p model.Process
	err := db.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, step, status, metadata, created_at, updated_at
		 FROM processes WHERE id = $1`, id,
	).Scan(&p.ID, &p.OwnerID, &p.Title, &p.Step, &p.Status, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Process{}, fmt.Errorf("storage: get process: %w", mapNotFound(err))
	}
	return p, nil
}

// UpdateProcess persists the process's mutable fields.
func (db *DB) UpdateProcess(ctx context.Context, p model.Process) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE processes SET title = $2, step = $3, status = $4, metadata = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.Title, string(p.Step), string(p.Status), p.Metadata, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: update process: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: update process: %w", repo.ErrNotFound)
	}
	return nil
}
