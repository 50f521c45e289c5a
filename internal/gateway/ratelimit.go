// ABOUTME: Per-sender token bucket limiting for /ask-ai.
// ABOUTME: Each sender phone gets its own rate.Limiter; idle limiters are pruned.

package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused sender limiter is kept.
const limiterIdleTTL = 10 * time.Minute

type senderBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// senderLimiter hands out one token bucket per sender.
type senderLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*senderBucket
	now     func() time.Time
	pruned  time.Time
}

// newSenderLimiter returns nil when rps is not positive, which allows everything.
func newSenderLimiter(rps float64, burst int) *senderLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &senderLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*senderBucket),
		now:     time.Now,
	}
}

// Allow reports whether sender may make a request now.
func (l *senderLimiter) Allow(sender string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	b, ok := l.buckets[sender]
	if !ok {
		b = &senderBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[sender] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Must be called with mu held.
func (l *senderLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.pruned) < limiterIdleTTL {
		return
	}
	l.pruned = now
	for sender, b := range l.buckets {
		if now.Sub(b.lastSeen) >= limiterIdleTTL {
			delete(l.buckets, sender)
		}
	}
}
