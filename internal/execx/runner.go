package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrToolUnavailable marks a required external binary that is not on PATH.
var ErrToolUnavailable = errors.New("required tool not found")

// Runner abstracts external command execution so adapters can be tested
// without the real binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	LookPath(name string) (string, error)
}

type systemRunner struct{}

// System returns a Runner backed by os/exec.
func System() Runner {
	return systemRunner{}
}

func (systemRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return stdout.String(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return stdout.String(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return stdout.String(), nil
}

func (systemRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Ensure verifies that every named binary resolves on PATH. The first
// missing one is reported as ErrToolUnavailable.
func Ensure(r Runner, names ...string) error {
	for _, name := range names {
		if _, err := r.LookPath(name); err != nil {
			return fmt.Errorf("%w: %s", ErrToolUnavailable, name)
		}
	}
	return nil
}
