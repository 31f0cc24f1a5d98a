// Package quota is the default collab.QuotaChecker adapter: a per-user
// token bucket held in memory. Admission is a single synchronous check,
// atomic with the decision to let the request proceed — there is no
// partial admission and no refund path (see the Open Questions resolution
// in DESIGN.md).
package quota

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"chatcoach/internal/collab"
)

// StaticChecker grants every user the same rate limit, lazily creating a
// limiter on first use.
type StaticChecker struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a StaticChecker allowing ratePerSecond sustained requests per
// user with a burst allowance of burst.
func New(ratePerSecond float64, burst int) *StaticChecker {
	return &StaticChecker{
		limit:    rate.Limit(ratePerSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

var _ collab.QuotaChecker = (*StaticChecker)(nil)

// Admit implements collab.QuotaChecker.
func (c *StaticChecker) Admit(_ context.Context, userID string) error {
	c.mu.Lock()
	l, ok := c.limiters[userID]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[userID] = l
	}
	c.mu.Unlock()

	if !l.Allow() {
		return fmt.Errorf("quota exceeded for user %s", userID)
	}
	return nil
}
