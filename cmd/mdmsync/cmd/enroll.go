package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetkeeper/mdmsync/internal/enroll"
	"github.com/fleetkeeper/mdmsync/internal/execx"
	"github.com/fleetkeeper/mdmsync/internal/httpclient"
	"github.com/fleetkeeper/mdmsync/internal/suppress"
)

var (
	enrollAuthKey      string
	enrollClientID     string
	enrollClientSecret string
	enrollTags         string
	enrollHostname     string
	enrollNoSuppress   bool
	enrollSuppressName string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll this device into the tailnet",
	Long: `Resolve a Tailscale auth key (directly, or minted through an OAuth
client) and bring the device up with it. While the VPN client is being
configured a background sweep keeps its GUI login popup from appearing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ecfg := enroll.Config{
			AuthKey:      cfg.Tailscale.AuthKey,
			ClientID:     cfg.Tailscale.ClientID,
			ClientSecret: cfg.Tailscale.ClientSecret,
			Tags:         cfg.Tailscale.TagList(),
			Hostname:     cfg.Tailscale.Hostname,
		}

		flags := cmd.Flags()
		if flags.Changed("auth-key") {
			ecfg.AuthKey = enrollAuthKey
		}
		if flags.Changed("client-id") {
			ecfg.ClientID = enrollClientID
		}
		if flags.Changed("client-secret") {
			ecfg.ClientSecret = enrollClientSecret
		}
		if flags.Changed("tags") {
			ecfg.Tags = splitTags(enrollTags)
		}
		if flags.Changed("hostname") {
			ecfg.Hostname = enrollHostname
		}

		enroller, err := enroll.New(ecfg, httpclient.New(30*time.Second), execx.System())
		if err != nil {
			return err
		}
		if !enrollNoSuppress {
			enroller.WithSuppressor(suppress.New(enrollSuppressName, suppress.DefaultInterval))
		}

		ctx, cancel := NewCommandContext(context.Background())
		defer cancel()

		if err := enroller.Run(ctx); err != nil {
			return err
		}
		if !IsQuiet() && !IsJSONOutput() {
			fmt.Println(okStyle.Render("✓ device enrolled"))
		}
		return nil
	},
}

func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().StringVar(&enrollAuthKey, "auth-key", "", "Tailscale auth key")
	enrollCmd.Flags().StringVar(&enrollClientID, "client-id", "", "OAuth client ID")
	enrollCmd.Flags().StringVar(&enrollClientSecret, "client-secret", "", "OAuth client secret")
	enrollCmd.Flags().StringVar(&enrollTags, "tags", "", "comma-separated device tags")
	enrollCmd.Flags().StringVar(&enrollHostname, "hostname", "", "device hostname on the tailnet")
	enrollCmd.Flags().BoolVar(&enrollNoSuppress, "no-suppress", false, "skip the GUI popup suppressor")
	enrollCmd.Flags().StringVar(&enrollSuppressName, "suppress-name", "Tailscale", "process name to suppress")
}
