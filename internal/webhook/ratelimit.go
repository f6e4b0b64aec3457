package webhook

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// senderLimiter enforces a per-sender message budget so one chatty
// number cannot monopolize the completion API. Limiters are created on
// first contact and dropped after an idle period.
type senderLimiter struct {
	mu       sync.Mutex
	limiters map[string]*senderEntry
	limit    rate.Limit
	burst    int
}

type senderEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = time.Hour

func newSenderLimiter(perMinute int) *senderLimiter {
	if perMinute < 1 {
		return nil
	}
	return &senderLimiter{
		limiters: make(map[string]*senderEntry),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

// Allow reports whether the sender is within budget.
func (l *senderLimiter) Allow(sender string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limiters[sender]
	if !ok {
		entry = &senderEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[sender] = entry
	}
	entry.lastSeen = now

	// Opportunistic cleanup, same lazy discipline as session expiry.
	for s, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.limiters, s)
		}
	}

	return entry.limiter.Allow()
}
