package relay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Connection retry defaults.
const (
	DefaultRetryAttempts = 60
	DefaultRetryInterval = 5 * time.Second
)

// RetryPolicy bounds how often the relay tries to connect to its node.
// Attempts is the maximum number of tries; zero is treated as one.
type RetryPolicy struct {
	Attempts uint64        `mapstructure:"connection_retry_attempts" yaml:"connection_retry_attempts"`
	Interval time.Duration `mapstructure:"connection_retry_interval" yaml:"connection_retry_interval"`
}

// DefaultRetryPolicy returns 60 attempts spaced 5 seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultRetryAttempts, Interval: DefaultRetryInterval}
}

// Validate rejects negative intervals.
func (p RetryPolicy) Validate() error {
	if p.Interval < 0 {
		return fmt.Errorf("connection retry interval must not be negative, got %s", p.Interval)
	}
	return nil
}

// MaxAttempts returns the number of tries Do makes before giving up.
func (p RetryPolicy) MaxAttempts() uint64 {
	return max(p.Attempts, 1)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, the attempts run out, fn returns a
// Permanent error, or ctx ends. The last error from fn is returned when
// attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt uint64) error) error {
	var err error
	for attempt := uint64(0); ; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(ctxErr, err)
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt+1 >= p.MaxAttempts() {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}
