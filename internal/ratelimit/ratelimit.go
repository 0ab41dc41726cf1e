// Package ratelimit implements per-identity, per-capability fixed-window
// rate limiting for agent executions.
//
// Two implementations share the Limiter interface:
//   - MemoryLimiter: process-local table guarded by a mutex (default)
//   - RedisLimiter:  shared counters in Redis for multi-instance deployments
//
// Both use the same fixed-window rule: the first request in a window starts
// a counter with resetTime = now + window; once now passes resetTime the
// next request opens a fresh window.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// Limit is the quota for one role.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

func (l Limit) String() string {
	return fmt.Sprintf("%d/%s", l.MaxRequests, l.Window)
}

// Result is the outcome of a single check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
	// RetryAfter is the number of whole seconds until the window resets.
	// Only set when the request was rejected.
	RetryAfter int `json:"retry_after,omitempty"`
	Limit      int `json:"limit"`
}

// Limiter admits or rejects requests for an identity, optionally scoped to
// a capability.
type Limiter interface {
	Check(ctx context.Context, identity string, role models.Role, capability string) (*Result, error)
	Reset(ctx context.Context, identity, capability string) error
	Clear(ctx context.Context) error
}

// DefaultLimits is the per-role quota table. Unknown roles use the
// anonymous entry, which is the most restrictive.
func DefaultLimits() Limits {
	return Limits{
		models.RoleAdmin:     {MaxRequests: 100, Window: time.Minute},
		models.RoleTeacher:   {MaxRequests: 50, Window: time.Minute},
		models.RoleStudent:   {MaxRequests: 20, Window: time.Minute},
		models.RoleSystem:    {MaxRequests: 200, Window: time.Minute},
		models.RoleAnonymous: {MaxRequests: 5, Window: time.Minute},
	}
}

// Limits maps roles to quotas.
type Limits map[models.Role]Limit

// For returns the quota for role, falling back to anonymous.
func (ls Limits) For(role models.Role) Limit {
	if l, ok := ls[role]; ok {
		return l
	}
	if l, ok := ls[models.RoleAnonymous]; ok {
		return l
	}
	return Limit{MaxRequests: 5, Window: time.Minute}
}

// WithOverrides returns a copy of ls with entries replaced by the parsed
// "max/window" overrides. Invalid overrides are returned as an error and
// leave the default in place.
func (ls Limits) WithOverrides(overrides map[string]string) (Limits, error) {
	out := make(Limits, len(ls))
	for k, v := range ls {
		out[k] = v
	}
	var errs []string
	for role, raw := range overrides {
		l, err := ParseLimit(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", role, err))
			continue
		}
		out[models.Role(role)] = l
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("invalid rate limit overrides: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

// ParseLimit parses "max/window", e.g. "50/1m" or "5/60s".
func ParseLimit(s string) (Limit, error) {
	maxStr, winStr, ok := strings.Cut(s, "/")
	if !ok {
		return Limit{}, fmt.Errorf("expected max/window, got %q", s)
	}
	max, err := strconv.Atoi(strings.TrimSpace(maxStr))
	if err != nil || max <= 0 {
		return Limit{}, fmt.Errorf("invalid max requests %q", maxStr)
	}
	win, err := time.ParseDuration(strings.TrimSpace(winStr))
	if err != nil || win <= 0 {
		return Limit{}, fmt.Errorf("invalid window %q", winStr)
	}
	return Limit{MaxRequests: max, Window: win}, nil
}

// Key builds the limiter key. Capability-scoped keys are independent of
// the identity's aggregate key.
func Key(identity, capability string) string {
	if capability == "" {
		return identity
	}
	return identity + ":" + capability
}

// retryAfterSeconds rounds the time left in the window up to whole seconds.
func retryAfterSeconds(reset, now time.Time) int {
	d := reset.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
