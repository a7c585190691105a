package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mdsync/mdsync/internal/engine"
	"github.com/mdsync/mdsync/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sessions of a running mdsync with a dashboard",
	Long: `Query the dashboard of a running "mdsync sync --dashboard" or
"mdsync dashboard" and list its sessions.

Examples:
  mdsync status
  mdsync status --dashboard-port 9000 --json`,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		url := fmt.Sprintf("http://%s:%d/sessions", cfg.Dashboard.Host, cfg.Dashboard.Port)
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s No running dashboard at %s\n", ui.RenderWarn("⚠"), url)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			fmt.Println(string(body))
			return
		}

		var statuses []engine.Status
		if err := json.Unmarshal(body, &statuses); err != nil {
			fmt.Fprintf(os.Stderr, "Error: unexpected response: %v\n", err)
			os.Exit(1)
		}
		if len(statuses) == 0 {
			fmt.Println("No sessions")
			return
		}
		fmt.Print(ui.SessionTable(statuses))
	},
}

func init() {
	statusCmd.Flags().Int("dashboard-port", 7420, "Dashboard port")
	statusCmd.Flags().Bool("json", false, "Output raw JSON")
	rootCmd.AddCommand(statusCmd)
}
