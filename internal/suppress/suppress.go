// Package suppress runs a cancellable background task that keeps a named
// GUI process from staying on screen, by scanning the process table on an
// interval and terminating matches. The enrollment flow starts it before
// touching the VPN client and joins it on every exit path.
package suppress

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/fleetkeeper/mdmsync/internal/logging"
)

const DefaultInterval = 2 * time.Second

// Killer finds processes by name and terminates them, returning how many
// it killed.
type Killer interface {
	FindAndKill(ctx context.Context, name string) (int, error)
}

type gopsKiller struct{}

func (gopsKiller) FindAndKill(ctx context.Context, name string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	killed := 0
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !strings.EqualFold(pname, name) {
			continue
		}
		if err := p.TerminateWithContext(ctx); err != nil {
			continue
		}
		killed++
	}
	return killed, nil
}

// Suppressor is a background sweep loop with an explicit stop signal.
type Suppressor struct {
	name     string
	interval time.Duration
	killer   Killer

	killed   atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func New(name string, interval time.Duration) *Suppressor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Suppressor{
		name:     name,
		interval: interval,
		killer:   gopsKiller{},
	}
}

// WithKiller swaps the process killer, for tests.
func (s *Suppressor) WithKiller(k Killer) *Suppressor {
	s.killer = k
	return s
}

// Start launches the sweep goroutine. It sweeps once immediately, then on
// every interval tick until Stop or ctx cancellation.
func (s *Suppressor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		log := logging.FromContext(ctx)
		log.Debug("popup suppressor started",
			slog.String("code", "SUPPRESS_START"),
			slog.String("process", s.name),
			slog.Duration("interval", s.interval),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(ctx, log)
		for {
			select {
			case <-ctx.Done():
				log.Debug("popup suppressor stopped",
					slog.String("code", "SUPPRESS_STOP"),
					slog.Int64("killed", s.killed.Load()),
				)
				return
			case <-ticker.C:
				s.sweep(ctx, log)
			}
		}
	}()
}

func (s *Suppressor) sweep(ctx context.Context, log *slog.Logger) {
	n, err := s.killer.FindAndKill(ctx, s.name)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("process sweep failed", slog.String("code", "SUPPRESS_ERR"), slog.Any("error", err))
		}
		return
	}
	if n > 0 {
		s.killed.Add(int64(n))
		log.Debug("terminated popup process",
			slog.String("code", "SUPPRESS_KILL"),
			slog.String("process", s.name),
			slog.Int("count", n),
		)
	}
}

// Stop cancels the sweep loop and waits for the goroutine to exit. Safe
// to call more than once, and a no-op if Start never ran.
func (s *Suppressor) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
	})
}

// Killed returns how many processes were terminated so far.
func (s *Suppressor) Killed() int64 {
	return s.killed.Load()
}
