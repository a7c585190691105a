// Command mdsync keeps Markdown files and Word documents in sync.
package main

import (
	"fmt"
	"os"

	"github.com/mdsync/mdsync/internal/config"
	"github.com/mdsync/mdsync/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	cfgFile string
	cfg     *config.Config
	v       *viper.Viper
)

// flagKeys maps command-line flags to config keys. A flag overrides the key
// when it is defined on the running command and set.
var flagKeys = map[string]string{
	"verbose":        "log.verbose",
	"log-file":       "log.file",
	"bidirectional":  "sync.bidirectional",
	"watch":          "sync.watch",
	"open":           "sync.open",
	"prefer-word":    "sync.prefer_word",
	"content-hash":   "sync.content_hash",
	"debounce":       "watch.debounce",
	"scope":          "watch.scope",
	"dashboard":      "dashboard.enabled",
	"dashboard-port": "dashboard.port",
	"journal":        "journal.enabled",
	"transport":      "server.transport",
	"addr":           "server.addr",
}

var rootCmd = &cobra.Command{
	Use:   "mdsync",
	Short: "Keep Markdown and Word documents in sync",
	Long: `mdsync converts a Markdown file to a Word document (or back) and keeps
the pair in sync while either side is edited.

Changes made by mdsync itself are recognized and ignored, so an edit travels
exactly one hop. Writes to a document that Word has locked are retried; if the
lock never clears the output is saved next to it as <name>.pending.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		noColor, _ := cmd.Flags().GetBool("no-color")
		ui.Setup(noColor || os.Getenv("NO_COLOR") != "")

		v = config.New(cfgFile)
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("failed to bind --%s: %w", name, err)
				}
			}
		}
		if err := config.Read(v); err != nil {
			return err
		}

		loaded, err := config.Decode(v)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./mdsync.toml, $XDG_CONFIG_HOME/mdsync, ~/.mdsync)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log every ignored echo")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to a rotating file instead of stderr")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
