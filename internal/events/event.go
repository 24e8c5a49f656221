package events

import "time"

type Phase string

const (
	PhaseStarted       Phase = "STARTED"
	PhaseProbing       Phase = "PROBING"
	PhaseCorrecting    Phase = "CORRECTING"
	PhaseSettling      Phase = "SETTLING"
	PhaseProgress      Phase = "PROGRESS"
	PhaseNoImprovement Phase = "NO_IMPROVEMENT"
	PhaseBackoff       Phase = "BACKOFF"
	PhaseSucceeded     Phase = "SUCCEEDED"
	PhaseExhausted     Phase = "EXHAUSTED"
)

// ConvergeEvent describes one phase transition of a convergence run.
type ConvergeEvent struct {
	RunID       string
	Phase       Phase
	Attempt     int
	MaxAttempts int
	Pending     int
	Failed      int
	Delay       time.Duration
	Message     string
	Timestamp   time.Time
}
