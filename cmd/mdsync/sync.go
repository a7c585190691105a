package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdsync/mdsync/internal/engine"
	"github.com/mdsync/mdsync/internal/ui"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync <file>",
	GroupID: "sync",
	Short:   "Convert a Markdown or Word file and keep the pair in sync",
	Long: `Convert <file> to its counterpart in the same directory (notes.md <->
notes.docx) and keep watching both files.

Editing the Markdown file updates the Word document. With --bidirectional
(default) saving the document in Word updates the Markdown file too.

Boolean flags default to true; disable them with --flag=false.

Examples:
  mdsync sync notes.md                      # convert, open in Word, watch both
  mdsync sync report.docx --open=false      # start from an existing document
  mdsync sync notes.md --watch=false        # convert once and exit
  mdsync sync notes.md --bidirectional=false`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := cfg.SessionOptions(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		a, err := newApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		id, err := a.registry.CreateAndStart(ctx, opts)
		if err != nil {
			_ = a.Close()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		st, _ := a.registry.Status(id)
		printStarted(st, a)

		if !st.Active {
			if err := a.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			if st.LastError != "" {
				os.Exit(1)
			}
			return
		}

		fmt.Printf("\nWatching for changes. Press Ctrl+C to stop...\n")
		<-ctx.Done()

		fmt.Printf("\n%s Stopping...\n", ui.RenderAccent("⏹"))
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	},
}

func printStarted(st engine.Status, a *app) {
	fmt.Printf("%s Session %s\n", ui.RenderPass("✓"), st.ID)
	fmt.Printf("   Markdown: %s\n", st.TextPath)
	fmt.Printf("   Word:     %s\n", st.RenderedPath)
	if st.Bidirectional {
		fmt.Printf("   Mode:     %s\n", "bidirectional")
	} else {
		fmt.Printf("   Mode:     %s\n", "markdown -> word")
	}
	if st.LastError != "" {
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), st.LastError)
	}
	if a.dash != nil {
		fmt.Printf("   Dashboard: http://%s\n", a.dash.GetAddr())
	}
}

func init() {
	syncCmd.Flags().BoolP("bidirectional", "b", true, "Sync Word edits back to Markdown")
	syncCmd.Flags().BoolP("watch", "w", true, "Keep watching after the first conversion")
	syncCmd.Flags().BoolP("open", "o", true, "Open the Word document after converting")
	syncCmd.Flags().Bool("prefer-word", true, "Prefer Microsoft Word over other office suites")
	syncCmd.Flags().Bool("content-hash", false, "Detect echoes by content instead of time")
	syncCmd.Flags().Duration("debounce", 0, "Minimum spacing between handled changes (default from config)")
	syncCmd.Flags().String("scope", "", "Debounce scope: shared or per-path (default from config)")
	syncCmd.Flags().Bool("dashboard", false, "Serve the live dashboard")
	syncCmd.Flags().Int("dashboard-port", 7420, "Dashboard port")
	syncCmd.Flags().Bool("journal", true, "Record sync history")
	rootCmd.AddCommand(syncCmd)
}
