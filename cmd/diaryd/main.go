// Package main is the entry point for the diaryd server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "diaryd",
		Short: "Conversational audio diary service",
		Long: `diaryd runs the diary chat service: it holds a short conversation about
the user's day, summarizes it and stores the summary as a diary entry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("APP_CONFIG_FILE", configFile)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file (overrides APP_CONFIG_FILE)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newEntriesCmd())
	root.AddCommand(newReplayCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
