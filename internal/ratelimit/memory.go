package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

type entry struct {
	count     int
	resetTime time.Time
}

// MemoryLimiter keeps fixed-window counters in a process-local map.
// The read-modify-write of each counter happens under mu.
type MemoryLimiter struct {
	mu      sync.Mutex
	limits  Limits
	entries map[string]*entry
	now     func() time.Time
}

// Option configures a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter creates a limiter with the given role quotas.
func NewMemoryLimiter(limits Limits, opts ...Option) *MemoryLimiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	l := &MemoryLimiter{
		limits:  limits,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request against the key for identity (and capability).
func (l *MemoryLimiter) Check(_ context.Context, identity string, role models.Role, capability string) (*Result, error) {
	limit := l.limits.For(role)
	key := Key(identity, capability)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.After(e.resetTime) {
		e = &entry{count: 1, resetTime: now.Add(limit.Window)}
		l.entries[key] = e
		return &Result{
			Allowed:   true,
			Remaining: limit.MaxRequests - 1,
			ResetTime: e.resetTime,
			Limit:     limit.MaxRequests,
		}, nil
	}

	e.count++
	if e.count > limit.MaxRequests {
		return &Result{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  e.resetTime,
			RetryAfter: retryAfterSeconds(e.resetTime, now),
			Limit:      limit.MaxRequests,
		}, nil
	}

	return &Result{
		Allowed:   true,
		Remaining: limit.MaxRequests - e.count,
		ResetTime: e.resetTime,
		Limit:     limit.MaxRequests,
	}, nil
}

// Reset clears a single key.
func (l *MemoryLimiter) Reset(_ context.Context, identity, capability string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, Key(identity, capability))
	return nil
}

// Clear drops every counter.
func (l *MemoryLimiter) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry)
	return nil
}

// Sweep removes entries whose window has already elapsed and returns how
// many were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		if now.After(e.resetTime) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start runs Sweep on interval until ctx is cancelled.
func (l *MemoryLimiter) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					log.Debug().Int("removed", n).Msg("Rate limiter sweep")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Info().Dur("interval", interval).Msg("Rate limiter sweeper started")
}
