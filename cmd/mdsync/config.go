package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mdsync/mdsync/internal/config"
	"github.com/mdsync/mdsync/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Create or inspect the mdsync configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file, asking for the common settings",
	Long: `Write a TOML config file with the effective settings.

On a terminal a short form asks for the common settings first; use --yes to
write the current values without asking.

Examples:
  mdsync config init                     # ~/.mdsync/mdsync.toml
  mdsync config init --path ./mdsync.toml --yes`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		yes, _ := cmd.Flags().GetBool("yes")
		force, _ := cmd.Flags().GetBool("force")

		if path == "" {
			path = filepath.Join(config.Dir(), config.FileName+".toml")
		}
		if _, err := os.Stat(path); err == nil && !force {
			fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", path)
			os.Exit(1)
		}

		if !yes && ui.IsTerminal(os.Stdin) {
			if err := runConfigForm(cfg); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Aborted.")
					return
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := cfg.WriteTOML(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Printf("# %s\n", used)
		} else {
			fmt.Println("# no config file; defaults and environment only")
		}
		out, err := yaml.Marshal(cfg.Settings())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
	},
}

// runConfigForm asks for the common settings and applies the answers to c.
func runConfigForm(c *config.Config) error {
	echo := c.Sync.EchoWindow.String()
	debounce := c.Watch.Debounce.String()
	scope := c.Watch.Scope
	bidirectional := c.Sync.Bidirectional
	open := c.Sync.Open
	preferWord := c.Sync.PreferWord
	logFile := c.Log.File

	validDuration := func(s string) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("must be positive")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Sync Word edits back to Markdown?").
				Value(&bidirectional),
			huh.NewConfirm().
				Title("Open the Word document after converting?").
				Value(&open),
			huh.NewConfirm().
				Title("Prefer Microsoft Word over other office suites?").
				Value(&preferWord),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Echo window").
				Description("How long changes to a just-written file are treated as mdsync's own").
				Value(&echo).
				Validate(validDuration),
			huh.NewInput().
				Title("Debounce").
				Description("Minimum spacing between handled changes").
				Value(&debounce).
				Validate(validDuration),
			huh.NewSelect[string]().
				Title("Debounce scope").
				Options(
					huh.NewOption("Shared by both files", "shared"),
					huh.NewOption("Separate per file", "per-path"),
				).
				Value(&scope),
			huh.NewInput().
				Title("Log file").
				Description("Leave empty to log to stderr").
				Value(&logFile),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	c.Sync.Bidirectional = bidirectional
	c.Sync.Open = open
	c.Sync.PreferWord = preferWord
	c.Sync.EchoWindow, _ = time.ParseDuration(echo)
	c.Watch.Debounce, _ = time.ParseDuration(debounce)
	c.Watch.Scope = scope
	c.Log.File = logFile
	return nil
}

func init() {
	configInitCmd.Flags().String("path", "", "Where to write the file (default: ~/.mdsync/mdsync.toml)")
	configInitCmd.Flags().BoolP("yes", "y", false, "Write without asking")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
