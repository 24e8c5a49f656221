package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fleetkeeper/mdmsync/internal/converge"
	"github.com/fleetkeeper/mdmsync/internal/events"
	"github.com/fleetkeeper/mdmsync/internal/execx"
	"github.com/fleetkeeper/mdmsync/internal/logging"
	"github.com/fleetkeeper/mdmsync/internal/profiles"
)

var (
	convergeRetries  int
	convergeDelay    string
	convergeMaxDelay string
	convergeInterval string
	convergeForce    bool
	convergePlain    bool
)

var convergeCmd = &cobra.Command{
	Use:   "converge",
	Short: "Retry until all MDM profiles are installed",
	Long: `Probe the outstanding configuration profiles, ask the MDM client to
renew them, and repeat with exponential backoff until nothing is
pending or failed, or the retry budget runs out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ccfg, err := buildConvergeConfig(cmd)
		if err != nil {
			return err
		}

		client := profiles.New(execx.System())
		if err := client.Available(); err != nil {
			return err
		}

		ctx, cancel := NewCommandContext(context.Background())
		defer cancel()

		loop, err := converge.NewLoop(ccfg, client, client)
		if err != nil {
			return err
		}

		// Informational only; never drives the loop.
		if info, err := client.EnrollmentInfo(ctx); err == nil {
			logging.FromContext(ctx).Info("mdm enrollment state",
				slog.String("code", "CONV_ENROLLMENT"),
				slog.Bool("enrolled", info.Enrolled),
				slog.Bool("user_approved", info.UserApproved),
				slog.Bool("dep", info.DEP),
			)
		}

		if convergePlain || IsJSONOutput() || IsQuiet() {
			res, runErr := loop.Run(ctx)
			return reportConvergeResult(res, runErr)
		}

		hub := events.NewHub()
		loop.WithHub(hub)

		m := NewConvergeModel(loop, hub, ctx, cancel)
		if err := NewUI(m).Run(); err != nil {
			return err
		}
		return reportConvergeResult(m.result, m.runErr)
	},
}

func init() {
	rootCmd.AddCommand(convergeCmd)
	convergeCmd.Flags().IntVar(&convergeRetries, "retries", 0, "maximum attempts (default from config)")
	convergeCmd.Flags().StringVar(&convergeDelay, "delay", "", "initial backoff between attempts, seconds or duration")
	convergeCmd.Flags().StringVar(&convergeMaxDelay, "max-delay", "", "backoff cap, seconds or duration")
	convergeCmd.Flags().StringVar(&convergeInterval, "interval", "", "settle time after a renew, seconds or duration")
	convergeCmd.Flags().BoolVar(&convergeForce, "force", false, "renew even when nothing is outstanding")
	convergeCmd.Flags().BoolVar(&convergePlain, "plain", false, "log lines instead of the live view")
}

// buildConvergeConfig layers changed flags over the file/env config.
func buildConvergeConfig(cmd *cobra.Command) (converge.Config, error) {
	ccfg := converge.Config{
		MaxAttempts:   cfg.Converge.Retries,
		InitialDelay:  cfg.Converge.InitialDelay(),
		MaxDelay:      cfg.Converge.MaxDelay(),
		CheckInterval: cfg.Converge.CheckInterval(),
		Force:         convergeForce,
	}

	flags := cmd.Flags()
	if flags.Changed("retries") {
		ccfg.MaxAttempts = convergeRetries
	}
	if flags.Changed("delay") {
		d, err := parseSeconds(convergeDelay)
		if err != nil {
			return converge.Config{}, fmt.Errorf("--delay: %w", err)
		}
		ccfg.InitialDelay = d
	}
	if flags.Changed("max-delay") {
		d, err := parseSeconds(convergeMaxDelay)
		if err != nil {
			return converge.Config{}, fmt.Errorf("--max-delay: %w", err)
		}
		ccfg.MaxDelay = d
	}
	if flags.Changed("interval") {
		d, err := parseSeconds(convergeInterval)
		if err != nil {
			return converge.Config{}, fmt.Errorf("--interval: %w", err)
		}
		ccfg.CheckInterval = d
	}

	if err := ccfg.Validate(); err != nil {
		return converge.Config{}, err
	}
	return ccfg, nil
}

func reportConvergeResult(res converge.Result, runErr error) error {
	if runErr != nil && !errors.Is(runErr, converge.ErrBudgetExhausted) {
		return runErr
	}

	switch {
	case IsJSONOutput():
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
	case IsQuiet():
		fmt.Println(res.Outcome)
	}

	return runErr
}
