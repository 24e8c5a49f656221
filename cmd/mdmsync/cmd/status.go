package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetkeeper/mdmsync/internal/execx"
	"github.com/fleetkeeper/mdmsync/internal/profiles"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show profile and enrollment state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := profiles.New(execx.System())
		if err := client.Available(); err != nil {
			return err
		}

		ctx, cancel := NewCommandContext(context.Background())
		defer cancel()

		counts, err := client.Probe(ctx)
		if err != nil {
			return err
		}

		info, infoErr := client.EnrollmentInfo(ctx)

		if IsJSONOutput() {
			out := map[string]any{
				"pending": counts.Pending,
				"failed":  counts.Failed,
			}
			if infoErr == nil {
				out["enrollment"] = info
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if IsQuiet() {
			fmt.Printf("%d %d\n", counts.Pending, counts.Failed)
			return nil
		}

		fmt.Println(titleStyle.Render("mdmsync status"))
		fmt.Println()
		if counts.Clear() {
			fmt.Println("  " + okStyle.Render("✓ all profiles installed"))
		} else {
			fmt.Printf("  %s, %s\n",
				pendingStyle.Render(fmt.Sprintf("%d pending", counts.Pending)),
				failStyle.Render(fmt.Sprintf("%d failed", counts.Failed)),
			)
		}
		if infoErr == nil {
			fmt.Printf("\n  Enrolled: %s", yesNo(info.Enrolled))
			if info.UserApproved {
				fmt.Print(" (user approved)")
			}
			fmt.Println()
			fmt.Printf("  DEP: %s\n", yesNo(info.DEP))
			if info.Server != "" {
				fmt.Printf("  Server: %s\n", dimStyle.Render(info.Server))
			}
		}
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
