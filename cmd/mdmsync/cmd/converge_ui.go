package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fleetkeeper/mdmsync/internal/converge"
	"github.com/fleetkeeper/mdmsync/internal/events"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
)

type convergeEventMsg events.ConvergeEvent

type convergeDoneMsg struct {
	result converge.Result
	err    error
}

type ConvergeModel struct {
	loop   *converge.Loop
	hub    *events.Hub
	ctx    context.Context
	cancel context.CancelFunc
	sub    *events.Subscriber

	spinner     spinner.Model
	phase       events.Phase
	attempt     int
	maxAttempts int
	pending     int
	failed      int
	delay       time.Duration

	result   converge.Result
	runErr   error
	done     bool
	quitting bool
}

func NewConvergeModel(loop *converge.Loop, hub *events.Hub, ctx context.Context, cancel context.CancelFunc) *ConvergeModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	sub := &events.Subscriber{
		ID:     "converge-ui",
		RunID:  loop.RunID(),
		Events: make(chan events.ConvergeEvent, 64),
	}
	hub.Subscribe(sub)

	return &ConvergeModel{
		loop:    loop,
		hub:     hub,
		ctx:     ctx,
		cancel:  cancel,
		sub:     sub,
		spinner: s,
		phase:   events.PhaseStarted,
	}
}

func (m *ConvergeModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runLoop(), m.waitForEvent())
}

func (m *ConvergeModel) runLoop() tea.Cmd {
	return func() tea.Msg {
		res, err := m.loop.Run(m.ctx)
		return convergeDoneMsg{result: res, err: err}
	}
}

func (m *ConvergeModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.sub.Events
		if !ok {
			return nil
		}
		return convergeEventMsg(ev)
	}
}

func (m *ConvergeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			// Cancel the run; the done message quits the program.
			m.quitting = true
			m.cancel()
			return m, nil
		case "q":
			if m.done {
				return m, tea.Quit
			}
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case convergeEventMsg:
		m.applyEvent(events.ConvergeEvent(msg))
		return m, m.waitForEvent()
	case convergeDoneMsg:
		m.result = msg.result
		m.runErr = msg.err
		m.done = true
		m.hub.Unsubscribe(m.sub.ID)
		return m, tea.Quit
	}
	return m, nil
}

func (m *ConvergeModel) applyEvent(ev events.ConvergeEvent) {
	m.phase = ev.Phase
	if ev.Attempt > 0 {
		m.attempt = ev.Attempt
	}
	m.maxAttempts = ev.MaxAttempts
	m.delay = ev.Delay

	switch ev.Phase {
	case events.PhaseCorrecting, events.PhaseProgress, events.PhaseNoImprovement, events.PhaseExhausted:
		m.pending = ev.Pending
		m.failed = ev.Failed
	}
}

func (m *ConvergeModel) View() string {
	if m.quitting && !m.done {
		return dimStyle.Render("cancelling...") + "\n"
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("mdmsync converge"))
	s.WriteString("\n\n")

	if m.attempt > 0 {
		s.WriteString(fmt.Sprintf("  Attempt %d/%d\n", m.attempt, m.maxAttempts))
		s.WriteString(fmt.Sprintf("  Outstanding: %s, %s\n",
			pendingStyle.Render(fmt.Sprintf("%d pending", m.pending)),
			failStyle.Render(fmt.Sprintf("%d failed", m.failed)),
		))
	}

	if m.done {
		s.WriteString("\n")
		if m.result.Outcome == converge.OutcomeSucceeded {
			s.WriteString(okStyle.Render("  ✓ all profiles installed"))
		} else if m.runErr != nil {
			s.WriteString(failStyle.Render("  ✗ " + m.runErr.Error()))
		}
		s.WriteString("\n")
		return s.String()
	}

	s.WriteString(fmt.Sprintf("\n  %s %s\n", m.spinner.View(), m.phaseLine()))
	s.WriteString(dimStyle.Render("\n  (ctrl+c to cancel)"))
	s.WriteString("\n")

	return s.String()
}

func (m *ConvergeModel) phaseLine() string {
	switch m.phase {
	case events.PhaseStarted, events.PhaseProbing:
		return "checking profile status"
	case events.PhaseCorrecting:
		return "renewing profiles"
	case events.PhaseSettling:
		return fmt.Sprintf("waiting %s for the MDM client to settle", m.delay)
	case events.PhaseProgress:
		return "progress made"
	case events.PhaseNoImprovement:
		return "no improvement yet"
	case events.PhaseBackoff:
		return fmt.Sprintf("backing off %s before the next attempt", m.delay)
	default:
		return string(m.phase)
	}
}
