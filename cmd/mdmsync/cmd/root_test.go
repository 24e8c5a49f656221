package cmd

import (
	"testing"
	"time"
)

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30", 30 * time.Second, false},
		{"1", 1 * time.Second, false},
		{"45s", 45 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"-10s", 0, true},
		{"soon", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSeconds(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseSeconds(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSeconds(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseSeconds(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"converge": false,
		"status":   false,
		"enroll":   false,
		"logs":     false,
	}

	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
