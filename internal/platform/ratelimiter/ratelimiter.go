// Package ratelimiter applies a token bucket per organization to outbound
// API calls, so one busy org cannot starve the custody API quota shared by
// every session in the process.
package ratelimiter

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OrgLimiter keeps one token bucket per organization id and periodically
// evicts buckets that have gone idle.
type OrgLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byOrg   map[string]*entry
	hits    uint64
	idleTTL time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a per-org limiter; returns nil (a no-op limiter) if args are
// invalid or throttling is disabled.
func New(rps float64, burst int, idleTTL time.Duration) *OrgLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &OrgLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byOrg:   make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

// Wait blocks until one token is available for the org or the context ends.
// A nil limiter or empty org never blocks.
func (l *OrgLimiter) Wait(ctx context.Context, orgID string) error {
	if l == nil {
		return nil
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil
	}
	return l.get(orgID, time.Now()).Wait(ctx)
}

// Allow reports whether one token can be consumed without blocking.
func (l *OrgLimiter) Allow(orgID string, now time.Time) bool {
	if l == nil {
		return true
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return true
	}
	return l.get(orgID, now).AllowN(now, 1)
}

func (l *OrgLimiter) get(orgID string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byOrg[orgID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byOrg[orgID] = e
	}
	e.lastSeen = now

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byOrg {
			if v.lastSeen.Before(cutoff) {
				delete(l.byOrg, k)
			}
		}
	}
	return e.limiter
}
