// Package admission gates lead submissions with a per-client fixed-window
// rate limit.
package admission

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidConfig is returned when a limiter is built with a non-positive
// limit or window.
var ErrInvalidConfig = errors.New("admission: limit and window must be positive")

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// RetryAfter is how long the client should wait before the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter admits or rejects one request for a client key. Check and
// increment happen atomically.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func validate(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
