// Package profiles adapts the macOS `profiles` tool to the typed probe
// and corrector capabilities the convergence loop consumes. All text
// parsing of tool output lives here.
package profiles

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fleetkeeper/mdmsync/internal/converge"
	"github.com/fleetkeeper/mdmsync/internal/execx"
	"github.com/fleetkeeper/mdmsync/internal/logging"
)

const profilesBin = "profiles"

// Client wraps the profiles binary.
type Client struct {
	runner execx.Runner
}

var (
	_ converge.Prober    = (*Client)(nil)
	_ converge.Corrector = (*Client)(nil)
)

func New(runner execx.Runner) *Client {
	return &Client{runner: runner}
}

// Available reports whether the profiles binary is on PATH.
func (c *Client) Available() error {
	return execx.Ensure(c.runner, profilesBin)
}

// Probe runs `profiles status -type configuration` and returns the counts
// of profiles still pending or failed.
func (c *Client) Probe(ctx context.Context) (converge.Counts, error) {
	out, err := c.runner.Run(ctx, profilesBin, "status", "-type", "configuration")
	if err != nil {
		return converge.Counts{}, fmt.Errorf("profiles status: %w", err)
	}
	return ParseStatus(out)
}

// Correct asks the MDM client to re-evaluate outstanding profiles.
func (c *Client) Correct(ctx context.Context) error {
	_, err := c.runner.Run(ctx, profilesBin, "renew", "-type", "configuration")
	if err != nil {
		return fmt.Errorf("profiles renew: %w", err)
	}
	return nil
}

// ForceCorrect flushes the preferences daemon cache before a forced
// renew. The cache flush is best effort; a failure there does not stop
// the renew.
func (c *Client) ForceCorrect(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, "killall", "cfprefsd"); err != nil {
		logging.FromContext(ctx).Warn("cfprefsd flush failed",
			slog.String("code", "CONV_CACHE_FLUSH"),
			slog.Any("error", err),
		)
	}
	_, err := c.runner.Run(ctx, profilesBin, "renew", "-type", "configuration", "-forced")
	if err != nil {
		return fmt.Errorf("profiles renew -forced: %w", err)
	}
	return nil
}

// Enrollment is the informational MDM enrollment state. It never drives
// control flow.
type Enrollment struct {
	Enrolled     bool
	UserApproved bool
	DEP          bool
	Server       string
}

// EnrollmentInfo runs `profiles status -type enrollment` and parses the
// key/value lines it prints.
func (c *Client) EnrollmentInfo(ctx context.Context) (Enrollment, error) {
	out, err := c.runner.Run(ctx, profilesBin, "status", "-type", "enrollment")
	if err != nil {
		return Enrollment{}, fmt.Errorf("profiles status -type enrollment: %w", err)
	}
	return parseEnrollment(out), nil
}

// ParseStatus extracts pending/failed counts from the status listing. The
// tool prints one profile per line with its state in parentheses, plus
// header/summary lines which are ignored.
func ParseStatus(out string) (converge.Counts, error) {
	var counts converge.Counts
	sawListing := false

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "there are no") {
			// "There are no configuration profiles installed"
			return converge.Counts{}, nil
		}
		if !strings.HasSuffix(lower, ")") {
			continue
		}
		sawListing = true
		switch {
		case strings.HasSuffix(lower, "(pending)"), strings.HasSuffix(lower, "(pending install)"):
			counts.Pending++
		case strings.HasSuffix(lower, "(failed)"), strings.HasSuffix(lower, "(install failed)"):
			counts.Failed++
		}
	}
	if err := scanner.Err(); err != nil {
		return converge.Counts{}, err
	}

	if !sawListing && !strings.Contains(strings.ToLower(out), "profiles installed") {
		return converge.Counts{}, fmt.Errorf("unrecognized profiles status output: %q", firstLine(out))
	}
	return counts, nil
}

func parseEnrollment(out string) Enrollment {
	var e Enrollment
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "enrolled via dep":
			e.DEP = strings.EqualFold(value, "yes")
		case "mdm enrollment":
			e.Enrolled = strings.HasPrefix(strings.ToLower(value), "yes")
			e.UserApproved = strings.Contains(strings.ToLower(value), "user approved")
		case "mdm server":
			e.Server = value
		}
	}
	return e
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
