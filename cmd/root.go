// Package cmd defines the CLI commands for the ivesna executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ivesna",
		Short: "Retrieval-augmented assistant for bank websites",
		Long: `ivesna crawls a bank's public website, chunks and embeds the
content, and answers customer questions over HTTP with citations back
to the source pages.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, env vars with IVESNA_ prefix also apply)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	// A missing .env file is fine; env vars may come from elsewhere.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
