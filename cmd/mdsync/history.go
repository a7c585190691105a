package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mdsync/mdsync/internal/engine"
	"github.com/mdsync/mdsync/internal/journal"
	"github.com/mdsync/mdsync/internal/ui"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "sync",
	Short:   "Show recorded sync activity",
	Long: `Show conversions, ignored echoes, failures and pending writes recorded by
earlier sync runs.

--since accepts a duration ("2h", "30m") or a natural-language time
("2 hours ago", "yesterday", "last monday").

Examples:
  mdsync history
  mdsync history --since "2 hours ago"
  mdsync history --session 01J5... --format json
  mdsync history --kind conversion_failed,write_pending`,
	Run: func(cmd *cobra.Command, args []string) {
		sinceExpr, _ := cmd.Flags().GetString("since")
		sessionID, _ := cmd.Flags().GetString("session")
		kinds, _ := cmd.Flags().GetStringSlice("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		filter := journal.Filter{SessionID: sessionID, Limit: limit}
		for _, k := range kinds {
			filter.Kinds = append(filter.Kinds, engine.EventKind(strings.TrimSpace(k)))
		}
		if sinceExpr != "" {
			since, err := parseSince(sinceExpr, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			filter.Since = since
		}

		j, err := openJournal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer j.Close()

		events, err := j.Query(context.Background(), filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := printEvents(events, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete history older than a given time",
	Long: `Delete recorded events older than --older-than.

Examples:
  mdsync history prune --older-than "30 days ago"
  mdsync history prune --older-than 168h`,
	Run: func(cmd *cobra.Command, args []string) {
		expr, _ := cmd.Flags().GetString("older-than")
		before, err := parseSince(expr, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		j, err := openJournal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer j.Close()

		removed, err := j.Prune(context.Background(), before)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Removed %d events before %s\n", ui.RenderPass("✓"), removed, before.Format(time.DateTime))
	},
}

func openJournal() (*journal.Journal, error) {
	if _, err := os.Stat(cfg.Journal.Path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no history recorded yet (%s)", cfg.Journal.Path)
	}
	return journal.Open(cfg.Journal.Path, nil)
}

// parseSince turns a duration ("2h") or a natural-language expression
// ("2 hours ago") into an absolute time relative to now.
func parseSince(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if d, err := time.ParseDuration(expr); err == nil {
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", expr)
	}
	return r.Time, nil
}

func printEvents(events []engine.Event, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if events == nil {
			events = []engine.Event{}
		}
		return enc.Encode(events)
	case "yaml":
		out, err := yaml.Marshal(events)
		if err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	case "table", "":
		if len(events) == 0 {
			fmt.Printf("%s No matching events\n", ui.RenderDim("·"))
			return nil
		}
		fmt.Print(ui.EventTable(events))
		return nil
	default:
		return fmt.Errorf("unknown format %q (table, json, yaml)", format)
	}
}

func init() {
	historyCmd.Flags().String("since", "", "Only events after this time (\"2h\", \"2 hours ago\")")
	historyCmd.Flags().String("session", "", "Only events of this session")
	historyCmd.Flags().StringSlice("kind", nil, "Only these event kinds")
	historyCmd.Flags().Int("limit", 200, "Maximum number of events (0 = all)")
	historyCmd.Flags().String("format", "table", "Output format: table, json or yaml")

	historyPruneCmd.Flags().String("older-than", "30 days ago", "Delete events before this time")

	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}
