package retry

import "time"

// Policy answers the two questions a retrying caller has: should another
// attempt be made, and how long to wait before it.
type Policy struct {
	config Config
}

func NewPolicy(cfg Config) *Policy {
	return &Policy{config: cfg}
}

func (p *Policy) ShouldRetry(attempt int) bool {
	return attempt < p.config.MaxAttempts
}

// NextDelay returns the backoff delay after the given 0-based number of
// unsuccessful attempts.
func (p *Policy) NextDelay(attempt int) time.Duration {
	backoff := DefaultBackoff()
	backoff.BaseDelay = p.config.InitialBackoff
	backoff.MaxDelay = p.config.MaxBackoff
	backoff.Factor = p.config.BackoffMultiplier
	backoff.Jitter = p.config.JitterFactor

	return backoff.NextDelay(attempt)
}

// MaxAttempts returns the maximum configured retry attempts.
func (p *Policy) MaxAttempts() int {
	return p.config.MaxAttempts
}
