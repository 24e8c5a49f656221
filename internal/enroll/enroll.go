// Package enroll brings a device onto the tailnet: it resolves an auth
// key (given directly, or minted via an OAuth client-credentials grant),
// then hands it to the local tailscale client.
package enroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/fleetkeeper/mdmsync/internal/execx"
	"github.com/fleetkeeper/mdmsync/internal/httpclient"
	"github.com/fleetkeeper/mdmsync/internal/logging"
	"github.com/fleetkeeper/mdmsync/internal/suppress"
)

const (
	DefaultAPIBase      = "https://api.tailscale.com"
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 2 * time.Minute

	tailscaleBin = "tailscale"
)

var (
	// ErrNoCredentials means neither an auth key nor an OAuth client pair
	// was supplied.
	ErrNoCredentials = errors.New("no credentials: set an auth key or a client id/secret pair")

	// ErrTokenTimeout means the OAuth grant never became ready within the
	// polling window.
	ErrTokenTimeout = errors.New("timed out waiting for OAuth token")
)

type Config struct {
	AuthKey      string
	ClientID     string
	ClientSecret string
	Tags         []string
	Hostname     string
	APIBase      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func (c *Config) Validate() error {
	if c.AuthKey == "" && c.ClientID == "" && c.ClientSecret == "" {
		return ErrNoCredentials
	}
	if c.AuthKey == "" {
		if c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("client id and client secret must both be set")
		}
		if len(c.Tags) == 0 {
			return fmt.Errorf("tags are required when enrolling with an OAuth client")
		}
	}
	return nil
}

type Enroller struct {
	cfg        Config
	http       *httpclient.Client
	runner     execx.Runner
	suppressor *suppress.Suppressor
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, http *httpclient.Client, runner execx.Runner) (*Enroller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	return &Enroller{
		cfg:    cfg,
		http:   http,
		runner: runner,
		sleep:  sleepCtx,
	}, nil
}

// WithSuppressor adds a popup suppressor that runs for the duration of
// the enrollment and is joined before Run returns, on every path.
func (e *Enroller) WithSuppressor(s *suppress.Suppressor) *Enroller {
	e.suppressor = s
	return e
}

func (e *Enroller) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)

	if err := execx.Ensure(e.runner, tailscaleBin); err != nil {
		return err
	}

	if e.suppressor != nil {
		e.suppressor.Start(ctx)
		defer e.suppressor.Stop()
	}

	key := e.cfg.AuthKey
	if key != "" {
		if e.cfg.ClientID != "" || e.cfg.ClientSecret != "" {
			log.Warn("both credential forms supplied, using the direct auth key",
				slog.String("code", "ENROLL_CREDS"))
		}
	} else {
		token, err := e.fetchToken(ctx)
		if err != nil {
			return err
		}
		key, err = e.mintAuthKey(ctx, token)
		if err != nil {
			return err
		}
	}

	return e.bringUp(ctx, key)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// fetchToken exchanges the OAuth client pair for an access token. Freshly
// provisioned clients can take a while to propagate, so not-ready
// responses are polled until PollTimeout.
func (e *Enroller) fetchToken(ctx context.Context) (string, error) {
	log := logging.FromContext(ctx)
	deadline := time.Now().Add(e.cfg.PollTimeout)

	form := url.Values{
		"client_id":     {e.cfg.ClientID},
		"client_secret": {e.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
	}

	for {
		resp, err := e.http.PostForm(ctx, e.cfg.APIBase+"/api/v2/oauth/token", form)
		if err != nil {
			return "", fmt.Errorf("token request: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.StatusCode != 202:
			var tr tokenResponse
			if err := json.Unmarshal([]byte(resp.Body), &tr); err != nil {
				return "", fmt.Errorf("parse token response: %w", err)
			}
			if tr.AccessToken == "" {
				return "", fmt.Errorf("token response missing access_token")
			}
			log.Info("OAuth token issued", slog.String("code", "ENROLL_TOKEN"))
			return tr.AccessToken, nil

		case resp.StatusCode == 202, resp.StatusCode == 404, grantNotReady(resp.Body):
			// Grant not propagated yet.
			if time.Now().After(deadline) {
				return "", ErrTokenTimeout
			}
			log.Debug("OAuth token not ready, polling",
				slog.String("code", "ENROLL_TOKEN_WAIT"),
				slog.Int("status", resp.StatusCode),
			)
			if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
				return "", err
			}

		default:
			return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
		}
	}
}

// grantNotReady reports whether an error body is the invalid_grant the
// token endpoint serves while a freshly created client propagates.
func grantNotReady(body string) bool {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return false
	}
	return e.Error == "invalid_grant"
}

type keyRequest struct {
	Capabilities  keyCapabilities `json:"capabilities"`
	ExpirySeconds int             `json:"expirySeconds"`
	Description   string          `json:"description"`
}

type keyCapabilities struct {
	Devices struct {
		Create struct {
			Reusable      bool     `json:"reusable"`
			Ephemeral     bool     `json:"ephemeral"`
			Preauthorized bool     `json:"preauthorized"`
			Tags          []string `json:"tags"`
		} `json:"create"`
	} `json:"devices"`
}

type keyResponse struct {
	Key string `json:"key"`
}

func (e *Enroller) mintAuthKey(ctx context.Context, token string) (string, error) {
	var req keyRequest
	req.Capabilities.Devices.Create.Preauthorized = true
	req.Capabilities.Devices.Create.Tags = e.cfg.Tags
	req.ExpirySeconds = 3600
	req.Description = "mdmsync enrollment"

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal key request: %w", err)
	}

	resp, err := e.http.PostJSON(ctx, e.cfg.APIBase+"/api/v2/tailnet/-/keys", payload, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return "", fmt.Errorf("key request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("key endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}

	var kr keyResponse
	if err := json.Unmarshal([]byte(resp.Body), &kr); err != nil {
		return "", fmt.Errorf("parse key response: %w", err)
	}
	if kr.Key == "" {
		return "", fmt.Errorf("key response missing key")
	}

	logging.FromContext(ctx).Info("auth key issued", slog.String("code", "ENROLL_KEY"))
	return kr.Key, nil
}

func (e *Enroller) bringUp(ctx context.Context, key string) error {
	args := []string{
		"up",
		"--auth-key=" + key,
		"--accept-routes=false",
		"--unattended",
	}
	if e.cfg.Hostname != "" {
		args = append(args, "--hostname="+e.cfg.Hostname)
	}
	if len(e.cfg.Tags) > 0 {
		args = append(args, "--advertise-tags="+strings.Join(e.cfg.Tags, ","))
	}

	if _, err := e.runner.Run(ctx, tailscaleBin, args...); err != nil {
		return fmt.Errorf("tailscale up: %w", err)
	}

	logging.FromContext(ctx).Info("device enrolled", slog.String("code", "ENROLL_DONE"))
	return nil
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
