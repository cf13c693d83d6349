package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/refmatch/refmatch/internal/repo"
)

// mapNotFound converts pgx's no-rows sentinel into the repository port's
// ErrNotFound so callers match on a single error.
func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}
