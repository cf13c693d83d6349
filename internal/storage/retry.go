package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Author upserts and shortlist creation take row locks; when adapters
// for one search finish together, Postgres may abort one transaction
// with a serialization failure or a deadlock. Those aborts are safe to
// rerun from the top.
const (
	lockRetryAttempts = 3
	lockRetryBaseWait = 50 * time.Millisecond
)

func retriablePgError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// withLockRetry runs fn, rerunning it on transient lock conflicts with
// doubled, jittered waits between attempts. The last error is returned
// when attempts run out.
func withLockRetry(ctx context.Context, fn func() error) error {
	wait := lockRetryBaseWait
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !retriablePgError(err) || attempt == lockRetryAttempts {
			return err
		}
		jitter := time.Duration(rand.Int64N(int64(wait))) //nolint:gosec // backoff jitter, not a secret
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait + jitter):
		}
		wait *= 2
	}
}
