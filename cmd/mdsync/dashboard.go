package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdsync/mdsync/internal/ui"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard [file...]",
	GroupID: "advanced",
	Short:   "Sync several files with a live WebSocket dashboard",
	Long: `Start a session for each file and serve a dashboard showing them live.

WebSocket messages:
- sessions: snapshot of every session, sent on connect
- session_event: conversion, ignored echo, failure, pending write, ...
- stats: running counters

HTTP endpoints:
  /sessions  JSON status of every session
  /health    server health

Example usage:
  mdsync dashboard notes.md report.docx
  mdsync dashboard --dashboard-port 9000 *.md`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg.Dashboard.Enabled = true

		a, err := newApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		started := 0
		for _, path := range args {
			opts, err := cfg.SessionOptions(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
				continue
			}
			opts.Watch = true
			id, err := a.registry.CreateAndStart(ctx, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderWarn("⚠"), path, err)
				continue
			}
			started++
			fmt.Printf("%s %s (%s)\n", ui.RenderPass("✓"), path, id)
		}
		if len(args) > 0 && started == 0 {
			_ = a.Close()
			fmt.Fprintf(os.Stderr, "Error: no session could be started\n")
			os.Exit(1)
		}

		addr := a.dash.GetAddr()
		fmt.Printf("\nDashboard: http://%s\n", addr)
		fmt.Printf("WebSocket: ws://%s/ws\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	},
}

func init() {
	dashboardCmd.Flags().Int("dashboard-port", 7420, "Port to listen on")
	rootCmd.AddCommand(dashboardCmd)
}
