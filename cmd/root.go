package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "edit-session-service",
	Short: "Edit session service: session lifecycle, WebSocket edit relay",
	Long:  `HTTP + WebSocket API brokering collaborative edit sessions between a document editor and a browser peer.`,
	RunE:  runAPI, // default: run API (same as "edit-session-service api")
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}
