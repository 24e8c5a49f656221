package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetkeeper/mdmsync/internal/logging"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View past runs from the JSON log file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := logging.LogFilePath()
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No logs found.")
				return nil
			}
			return err
		}
		defer f.Close()

		type entry struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Code    string `json:"code"`
			Msg     string `json:"msg"`
			RunID   string `json:"run_id"`
			Attempt int    `json:"attempt"`
		}

		var entries []entry
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var e entry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue
			}
			entries = append(entries, e)
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		if logsLimit > 0 && len(entries) > logsLimit {
			entries = entries[len(entries)-logsLimit:]
		}

		if IsJSONOutput() {
			data, _ := json.MarshalIndent(entries, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(entries) == 0 {
			fmt.Println("No logs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tLEVEL\tRUN\tATTEMPT\tCODE\tMESSAGE")
		for _, e := range entries {
			attempt := ""
			if e.Attempt > 0 {
				attempt = fmt.Sprintf("%d", e.Attempt)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Time,
				e.Level,
				e.RunID,
				attempt,
				e.Code,
				e.Msg,
			)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVar(&logsLimit, "limit", 50, "show at most this many lines (0 = all)")
}
