package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/fleetkeeper/mdmsync/internal/config"
	"github.com/fleetkeeper/mdmsync/internal/logging"
)

var (
	cfgPath    string
	verbose    bool
	jsonOutput bool
	quiet      bool

	cfg *config.Config

	// sessionID tags every log line of one CLI invocation.
	sessionID string
)

const sessionAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var rootCmd = &cobra.Command{
	Use:   "mdmsync",
	Short: "Device-management helper for managed Macs",
	Long: `mdmsync keeps a managed Mac in shape.

Drive outstanding MDM configuration profiles to zero with a bounded
retry loop, inspect the current profile and enrollment state, and
enroll the device into the tailnet.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}

		logging.Init(verbose)

		sessionID, err = gonanoid.Generate(sessionAlphabet, 8)
		if err != nil {
			sessionID = "unknown"
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/"+config.DefaultConfigFileName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")
}

func IsJSONOutput() bool {
	return jsonOutput
}

func IsQuiet() bool {
	return quiet
}

// NewCommandContext returns a context cancelled on SIGINT/SIGTERM, tagged
// with this invocation's session ID.
func NewCommandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := logging.WithRunID(parent, sessionID)
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// parseSeconds accepts the legacy bare-seconds form ("30") as well as Go
// duration syntax ("30s", "5m").
func parseSeconds(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, fmt.Errorf("duration must be at least 1 second, got %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %v", d)
	}
	return d, nil
}
