package engine

import (
	"time"

	"github.com/droverhq/drover/internal/ir"
)

// Backoff returns the delay before the next attempt after attempt n
// (1-based) failed. Exponential: BaseMS * Multiplier^(n-1), capped at
// MaxBackoffMS, stretched by up to 25% jitter so synchronized retries
// spread out. jitterFrac is in [0, 1); pass 0 for deterministic tests.
func Backoff(policy ir.RetryPolicy, attempt int, jitterFrac float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	ms := float64(policy.BaseMS)
	for i := 1; i < attempt; i++ {
		ms *= float64(policy.Multiplier)
		if policy.MaxBackoffMS > 0 && ms >= float64(policy.MaxBackoffMS) {
			break
		}
	}
	if policy.MaxBackoffMS > 0 && ms > float64(policy.MaxBackoffMS) {
		ms = float64(policy.MaxBackoffMS)
	}

	ms += ms * 0.25 * jitterFrac
	return time.Duration(ms) * time.Millisecond
}

// sleepCtx sleeps for d or until done closes.
// Returns false if cancelled first.
func sleepCtx(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
