package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFileName = ".mdmsync.yaml"

// Converge holds the retry-loop defaults. Durations are plain seconds in
// the YAML file and the environment, matching the flag surface.
type Converge struct {
	Retries         int `yaml:"retries"`
	DelaySeconds    int `yaml:"delay"`
	MaxDelaySeconds int `yaml:"max_delay"`
	IntervalSeconds int `yaml:"interval"`
}

type Tailscale struct {
	AuthKey      string `yaml:"auth_key"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Tags         string `yaml:"tags"` // comma-separated
	Hostname     string `yaml:"hostname"`
}

type Config struct {
	Converge  Converge  `yaml:"converge"`
	Tailscale Tailscale `yaml:"tailscale"`
}

func DefaultConfig() *Config {
	return &Config{
		Converge: Converge{
			Retries:         5,
			DelaySeconds:    10,
			MaxDelaySeconds: 300,
			IntervalSeconds: 30,
		},
	}
}

func (c *Config) Validate() error {
	if c.Converge.Retries < 1 {
		return fmt.Errorf("converge.retries must be at least 1")
	}
	if c.Converge.DelaySeconds < 1 {
		return fmt.Errorf("converge.delay must be at least 1 second")
	}
	if c.Converge.MaxDelaySeconds < c.Converge.DelaySeconds {
		return fmt.Errorf("converge.max_delay must be >= converge.delay")
	}
	if c.Converge.IntervalSeconds < 1 {
		return fmt.Errorf("converge.interval must be at least 1 second")
	}
	return nil
}

func (c *Converge) InitialDelay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

func (c *Converge) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds) * time.Second
}

func (c *Converge) CheckInterval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// TagList splits the comma-separated tags field.
func (t *Tailscale) TagList() []string {
	if t.Tags == "" {
		return nil
	}
	parts := strings.Split(t.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		path = filepath.Join(home, DefaultConfigFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"MDMSYNC_RETRIES", &cfg.Converge.Retries},
		{"MDMSYNC_DELAY", &cfg.Converge.DelaySeconds},
		{"MDMSYNC_MAX_DELAY", &cfg.Converge.MaxDelaySeconds},
		{"MDMSYNC_INTERVAL", &cfg.Converge.IntervalSeconds},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", e.name, v)
		}
		*e.dst = n
	}

	if v := os.Getenv("MDMSYNC_TS_AUTH_KEY"); v != "" {
		cfg.Tailscale.AuthKey = v
	}
	if v := os.Getenv("MDMSYNC_TS_CLIENT_ID"); v != "" {
		cfg.Tailscale.ClientID = v
	}
	if v := os.Getenv("MDMSYNC_TS_CLIENT_SECRET"); v != "" {
		cfg.Tailscale.ClientSecret = v
	}
	if v := os.Getenv("MDMSYNC_TS_TAGS"); v != "" {
		cfg.Tailscale.Tags = v
	}
	if v := os.Getenv("MDMSYNC_TS_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}

	return nil
}
