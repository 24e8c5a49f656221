package cmd

import (
	"testing"
	"time"

	"github.com/fleetkeeper/mdmsync/internal/config"
)

func resetConvergeFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		for _, name := range []string{"retries", "delay", "max-delay", "interval", "force", "plain"} {
			f := convergeCmd.Flags().Lookup(name)
			if f == nil {
				t.Fatalf("flag %q not registered", name)
			}
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
}

func TestBuildConvergeConfigDefaults(t *testing.T) {
	resetConvergeFlags(t)
	cfg = config.DefaultConfig()

	ccfg, err := buildConvergeConfig(convergeCmd)
	if err != nil {
		t.Fatalf("buildConvergeConfig: %v", err)
	}
	if ccfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", ccfg.MaxAttempts)
	}
	if ccfg.InitialDelay != 10*time.Second {
		t.Errorf("InitialDelay = %v, want 10s", ccfg.InitialDelay)
	}
	if ccfg.MaxDelay != 300*time.Second {
		t.Errorf("MaxDelay = %v, want 300s", ccfg.MaxDelay)
	}
	if ccfg.CheckInterval != 30*time.Second {
		t.Errorf("CheckInterval = %v, want 30s", ccfg.CheckInterval)
	}
	if ccfg.Force {
		t.Error("Force = true, want false")
	}
}

func TestBuildConvergeConfigFlagsOverrideConfig(t *testing.T) {
	resetConvergeFlags(t)
	cfg = config.DefaultConfig()
	cfg.Converge.Retries = 8

	flags := convergeCmd.Flags()
	for k, v := range map[string]string{
		"retries":   "2",
		"delay":     "5",
		"max-delay": "2m",
		"interval":  "15s",
		"force":     "true",
	} {
		if err := flags.Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	ccfg, err := buildConvergeConfig(convergeCmd)
	if err != nil {
		t.Fatalf("buildConvergeConfig: %v", err)
	}
	if ccfg.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want flag value 2", ccfg.MaxAttempts)
	}
	if ccfg.InitialDelay != 5*time.Second {
		t.Errorf("InitialDelay = %v, want 5s", ccfg.InitialDelay)
	}
	if ccfg.MaxDelay != 2*time.Minute {
		t.Errorf("MaxDelay = %v, want 2m", ccfg.MaxDelay)
	}
	if ccfg.CheckInterval != 15*time.Second {
		t.Errorf("CheckInterval = %v, want 15s", ccfg.CheckInterval)
	}
	if !ccfg.Force {
		t.Error("Force = false, want true")
	}
}

func TestBuildConvergeConfigRejectsBadFlag(t *testing.T) {
	resetConvergeFlags(t)
	cfg = config.DefaultConfig()

	if err := convergeCmd.Flags().Set("delay", "soon"); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	if _, err := buildConvergeConfig(convergeCmd); err == nil {
		t.Error("expected error for unparseable --delay")
	}
}

func TestBuildConvergeConfigRejectsInconsistentDelays(t *testing.T) {
	resetConvergeFlags(t)
	cfg = config.DefaultConfig()

	flags := convergeCmd.Flags()
	if err := flags.Set("delay", "60"); err != nil {
		t.Fatal(err)
	}
	if err := flags.Set("max-delay", "30"); err != nil {
		t.Fatal(err)
	}
	if _, err := buildConvergeConfig(convergeCmd); err == nil {
		t.Error("expected error for max-delay below delay")
	}
}
