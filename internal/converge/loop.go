package converge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetkeeper/mdmsync/internal/events"
	"github.com/fleetkeeper/mdmsync/internal/logging"
	"github.com/fleetkeeper/mdmsync/internal/retry"
)

// Loop runs the bounded probe/correct/settle cycle.
type Loop struct {
	cfg       Config
	prober    Prober
	corrector Corrector
	policy    *retry.Policy
	hub       *events.Hub
	runID     string
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewLoop(cfg Config, prober Prober, corrector Corrector) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Loop{
		cfg:       cfg,
		prober:    prober,
		corrector: corrector,
		policy: retry.NewPolicy(retry.Config{
			MaxAttempts:       cfg.MaxAttempts,
			InitialBackoff:    cfg.InitialDelay,
			MaxBackoff:        cfg.MaxDelay,
			BackoffMultiplier: 2.0,
			JitterFactor:      0,
		}),
		runID: uuid.New().String(),
		sleep: sleepCtx,
	}, nil
}

// WithHub adds an event hub the loop publishes phase transitions to.
func (l *Loop) WithHub(hub *events.Hub) *Loop {
	l.hub = hub
	return l
}

// RunID identifies this run in log lines and events.
func (l *Loop) RunID() string {
	return l.runID
}

// Run executes the loop until the counts clear, the budget is exhausted,
// or ctx is cancelled. The corrective action's own failures never abort a
// run; probe failures do, since without counts there is nothing to decide
// on.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	ctx = logging.WithRunID(ctx, l.runID)
	l.publish(events.ConvergeEvent{Phase: events.PhaseStarted})

	var last Counts
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		ctx := logging.WithAttempt(ctx, attempt)
		log := logging.FromContext(ctx)

		l.publish(events.ConvergeEvent{Phase: events.PhaseProbing, Attempt: attempt})
		before, err := l.prober.Probe(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("probe: %w", err)
		}
		last = before
		log.Debug("probed outstanding work",
			slog.String("code", "CONV_PROBE"),
			slog.Int("pending", before.Pending),
			slog.Int("failed", before.Failed),
		)

		if before.Clear() && !l.cfg.Force {
			log.Info("already converged, nothing to do", slog.String("code", "CONV_DONE"))
			l.publish(events.ConvergeEvent{Phase: events.PhaseSucceeded, Attempt: attempt})
			return Result{Outcome: OutcomeSucceeded, Attempts: attempt, Final: before}, nil
		}

		l.publish(events.ConvergeEvent{
			Phase:   events.PhaseCorrecting,
			Attempt: attempt,
			Pending: before.Pending,
			Failed:  before.Failed,
		})
		l.correct(ctx, log)

		l.publish(events.ConvergeEvent{Phase: events.PhaseSettling, Attempt: attempt, Delay: l.cfg.CheckInterval})
		if err := l.sleep(ctx, l.cfg.CheckInterval); err != nil {
			return Result{}, err
		}

		after, err := l.prober.Probe(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("probe: %w", err)
		}
		last = after

		if after.Clear() {
			log.Info("converged", slog.String("code", "CONV_DONE"), slog.Int("attempts", attempt))
			l.publish(events.ConvergeEvent{Phase: events.PhaseSucceeded, Attempt: attempt})
			return Result{Outcome: OutcomeSucceeded, Attempts: attempt, Final: after}, nil
		}

		if after.ImprovedOver(before) {
			log.Info("progress made, counts dropped",
				slog.String("code", "CONV_PROGRESS"),
				slog.Int("pending", after.Pending),
				slog.Int("failed", after.Failed),
			)
			l.publish(events.ConvergeEvent{
				Phase:   events.PhaseProgress,
				Attempt: attempt,
				Pending: after.Pending,
				Failed:  after.Failed,
			})
		} else {
			log.Info("no improvement",
				slog.String("code", "CONV_STALLED"),
				slog.Int("pending", after.Pending),
				slog.Int("failed", after.Failed),
			)
			l.publish(events.ConvergeEvent{
				Phase:   events.PhaseNoImprovement,
				Attempt: attempt,
				Pending: after.Pending,
				Failed:  after.Failed,
			})
		}

		if attempt < l.cfg.MaxAttempts {
			delay := l.policy.NextDelay(attempt - 1)
			log.Info("backing off before next attempt",
				slog.String("code", "CONV_BACKOFF"),
				slog.Duration("delay", delay),
			)
			l.publish(events.ConvergeEvent{Phase: events.PhaseBackoff, Attempt: attempt, Delay: delay})
			if err := l.sleep(ctx, delay); err != nil {
				return Result{}, err
			}
		}
	}

	logging.FromContext(ctx).Error("convergence failed",
		slog.String("code", "CONV_EXHAUSTED"),
		slog.Int("attempts", l.cfg.MaxAttempts),
		slog.Int("pending", last.Pending),
		slog.Int("failed", last.Failed),
	)
	l.publish(events.ConvergeEvent{
		Phase:   events.PhaseExhausted,
		Attempt: l.cfg.MaxAttempts,
		Pending: last.Pending,
		Failed:  last.Failed,
	})
	return Result{Outcome: OutcomeExhausted, Attempts: l.cfg.MaxAttempts, Final: last}, ErrBudgetExhausted
}

func (l *Loop) correct(ctx context.Context, log *slog.Logger) {
	var err error
	if l.cfg.Force {
		err = l.corrector.ForceCorrect(ctx)
	} else {
		err = l.corrector.Correct(ctx)
	}
	if err != nil {
		log.Warn("corrective action failed, continuing",
			slog.String("code", "CONV_CORRECT_ERR"),
			slog.Any("error", err),
		)
	}
}

func (l *Loop) publish(ev events.ConvergeEvent) {
	if l.hub == nil {
		return
	}
	ev.RunID = l.runID
	ev.MaxAttempts = l.cfg.MaxAttempts
	ev.Timestamp = time.Now()
	l.hub.Publish(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
