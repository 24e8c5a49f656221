package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff handles exponential backoff calculations with optional jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Jitter    float64
}

// DefaultBackoff returns a standard backoff configuration.
func DefaultBackoff() *Backoff {
	return &Backoff{
		BaseDelay: 10 * time.Second,
		MaxDelay:  5 * time.Minute,
		Factor:    2.0,
		Jitter:    0,
	}
}

// NextDelay calculates the delay for the given 0-based attempt count.
// With Jitter at zero the result is exactly min(BaseDelay*Factor^attempt, MaxDelay).
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.BaseDelay) * math.Pow(b.Factor, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	if b.Jitter > 0 {
		jitterRange := delay * b.Jitter
		jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
		delay += jitter

		// Jitter can push a small delay negative; enforce a 100ms floor.
		if delay < float64(100*time.Millisecond) {
			delay = float64(100 * time.Millisecond)
		}
	}

	return time.Duration(delay)
}
