package node

import (
	"context"
	"errors"
	"time"

	"gopkg.in/cenkalti/backoff.v1"
)

// permanentError stops a retry loop.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// errStillPending is returned by an operation that should simply be polled
// again.
var errStillPending = errors.New("still pending")

// newBackOff is an exponential backoff that gives up after maxElapsed.
func newBackOff(initial, maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = maxElapsed
	b.Reset()
	return b
}

// retry runs op until it succeeds, returns a permanent error, the backoff
// gives up or ctx is done. The last error of op is returned.
func retry(ctx context.Context, b backoff.BackOff, op func() error) error {
	b.Reset()
	for {
		err := op()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return err
		}

		t := time.NewTimer(next)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
