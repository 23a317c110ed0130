package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	txRetries   = 3
	txBaseDelay = 10 * time.Millisecond
)

// retriable reports Postgres errors that mean a transaction lost a race
// and can be replayed unchanged.
func retriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", // serialization_failure
		"40P01": // deadlock_detected
		return true
	}
	return false
}

// withRetry runs fn, replaying it on serialization failures and deadlocks
// with jittered exponential backoff. fn must be a whole transaction.
func withRetry(ctx context.Context, fn func() error) error {
	delay := txBaseDelay
	var err error
	for attempt := 0; attempt <= txRetries; attempt++ {
		if err = fn(); err == nil || !retriable(err) || attempt == txRetries {
			return err
		}
		jitter := time.Duration(rand.Int64N(int64(delay)))
		t := time.NewTimer(delay + jitter)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
	return err
}
