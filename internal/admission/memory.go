package admission

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps fixed-window counters in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	count int
	start time.Time
}

// MemoryOption customizes a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewMemoryLimiter allows limit requests per key within each period.
func NewMemoryLimiter(limit int, period time.Duration, opts ...MemoryOption) (*MemoryLimiter, error) {
	if err := validate(limit, period); err != nil {
		return nil, err
	}
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow increments the key's counter, starting a fresh window when the
// previous one has elapsed.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.period)) {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++

	return Decision{
		Allowed: w.count <= l.limit,
		Count:   w.count,
		Limit:   l.limit,
		ResetAt: w.start.Add(l.period),
	}, nil
}

// Sweep drops expired windows and reports how many were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.start.Add(l.period)) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps expired windows every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
