package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdsync/mdsync/internal/config"
	"github.com/mdsync/mdsync/internal/toolserver"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Serve sync tools over JSON-RPC for assistants and editors",
	Long: `Serve the sync engine as JSON-RPC 2.0 tools.

Tools:
  convert_and_sync  Start a session (textPath/markdownPath, renderedPath/docxPath,
                    bidirectional, watch, openRendered/openDocx,
                    preferPrimaryApp/preferWord)
  sync_status       Status of one session (sessionId) or of all sessions
  sync_stop         Stop a session

Transports:
  stdio      One JSON message per line on stdin/stdout (default)
  websocket  WebSocket endpoint ws://<addr>/rpc

Logs go to stderr (or the configured log file) so stdout stays clean.

Examples:
  mdsync serve
  mdsync serve --transport websocket --addr 127.0.0.1:7421`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		server := toolserver.NewServer(&toolserver.Config{
			Version:     Version,
			TextExt:     cfg.Sync.TextExt,
			RenderedExt: cfg.Sync.RenderedExt,
			Logger:      a.logs.For("tools"),
		}, a.registry)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		switch cfg.Server.Transport {
		case config.TransportWebSocket:
			err = server.ListenAndServe(ctx, cfg.Server.Addr, nil)
		default:
			err = server.ServeStdio(ctx, os.Stdin, os.Stdout)
			if err == context.Canceled {
				err = nil
			}
		}
		if closeErr := a.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", closeErr)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().String("transport", config.TransportStdio, "Transport: stdio or websocket")
	serveCmd.Flags().String("addr", "127.0.0.1:7421", "Listen address for the websocket transport")
	serveCmd.Flags().Bool("dashboard", false, "Serve the live dashboard")
	serveCmd.Flags().Int("dashboard-port", 7420, "Dashboard port")
	rootCmd.AddCommand(serveCmd)
}
