// Package converge drives an external system's outstanding work toward
// zero: probe the current counts, apply a best-effort corrective action,
// wait for it to settle, probe again, and back off exponentially between
// attempts until the counts clear or the attempt budget runs out.
package converge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBudgetExhausted is returned when every attempt was consumed without
// the counts reaching zero.
var ErrBudgetExhausted = errors.New("retry budget exhausted without convergence")

// Counts is one probe observation of outstanding work.
type Counts struct {
	Pending int
	Failed  int
}

// Clear reports whether nothing is outstanding.
func (c Counts) Clear() bool {
	return c.Pending == 0 && c.Failed == 0
}

// ImprovedOver reports whether either count dropped relative to prev.
func (c Counts) ImprovedOver(prev Counts) bool {
	return c.Pending < prev.Pending || c.Failed < prev.Failed
}

func (c Counts) String() string {
	return fmt.Sprintf("%d pending / %d failed", c.Pending, c.Failed)
}

// Prober is a read-only status check of the external system.
type Prober interface {
	Probe(ctx context.Context) (Counts, error)
}

// Corrector nudges outstanding work toward completion. Both variants are
// best-effort: their errors are logged by the loop, never propagated.
type Corrector interface {
	Correct(ctx context.Context) error
	ForceCorrect(ctx context.Context) error
}

// Config is the immutable per-run configuration of the loop.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	CheckInterval time.Duration
	Force         bool
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		InitialDelay:  10 * time.Second,
		MaxDelay:      300 * time.Second,
		CheckInterval: 30 * time.Second,
		Force:         false,
	}
}

func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive, got %v", c.InitialDelay)
	}
	if c.MaxDelay <= 0 {
		return fmt.Errorf("max delay must be positive, got %v", c.MaxDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay %v must be >= initial delay %v", c.MaxDelay, c.InitialDelay)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %v", c.CheckInterval)
	}
	return nil
}

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeExhausted Outcome = "EXHAUSTED"
)

// Result summarizes a finished run.
type Result struct {
	Outcome  Outcome
	Attempts int
	Final    Counts
}
