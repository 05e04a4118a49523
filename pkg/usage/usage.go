// Package usage provides the per-user quota collaborator the init stage
// queries to emit the usage_limits event. Enforcement (rate limiting) is
// external; this package only reports and counts.
package usage

import (
	"context"
	"sync"

	"github.com/unichat-ai/unichat/pkg/api"
)

// Limiter reports a user's quota snapshot.
type Limiter interface {
	Limits(ctx context.Context, userID string) (api.UsageLimits, error)
}

// MemoryLimiter is an in-process Limiter with a flat daily limit.
type MemoryLimiter struct {
	mu    sync.Mutex
	used  map[string]int
	limit int
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a limiter with the given daily ceiling.
func NewMemoryLimiter(dailyLimit int) *MemoryLimiter {
	return &MemoryLimiter{
		used:  make(map[string]int),
		limit: dailyLimit,
	}
}

// Limits implements Limiter.
func (l *MemoryLimiter) Limits(ctx context.Context, userID string) (api.UsageLimits, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return api.UsageLimits{
		Daily: api.DailyLimit{Used: l.used[userID], Limit: l.limit},
	}, nil
}

// Record counts one completion against the user's quota.
func (l *MemoryLimiter) Record(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.used[userID]++
}
