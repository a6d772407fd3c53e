package notify

import (
	"sync"
	"time"
)

// tokenBucket is a per-channel rate limiter. A message costs one
// token; tokens refill continuously at the configured per-minute rate
// up to a burst of one minute's worth.
type tokenBucket struct {
	mu     sync.Mutex
	tokens float64
	cap    float64
	perSec float64
	last   time.Time
	now    func() time.Time
}

func newTokenBucket(perMinute int, now func() time.Time) *tokenBucket {
	capacity := float64(perMinute)
	if capacity < 1 {
		capacity = 1
	}
	return &tokenBucket{
		tokens: capacity,
		cap:    capacity,
		perSec: float64(perMinute) / 60,
		last:   now(),
		now:    now,
	}
}

// Allow consumes one token if available.
func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens += now.Sub(b.last).Seconds() * b.perSec
	if b.tokens > b.cap {
		b.tokens = b.cap
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
