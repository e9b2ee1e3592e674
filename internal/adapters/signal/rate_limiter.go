package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Handshake/internal/domain"
)

// CallRateLimiter caps how often one endpoint may submit connect
// requests inside a sliding window.
type CallRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.EndpointID][]time.Time
	limit    int
	interval time.Duration
}

func NewCallRateLimiter(limit int, interval time.Duration) *CallRateLimiter {
	return &CallRateLimiter{
		history:  make(map[domain.EndpointID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *CallRateLimiter) Allow(id domain.EndpointID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}

func (rl *CallRateLimiter) Forget(id domain.EndpointID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
