package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	logLevel string
}

func rootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Operate the pipeline catalog from the shell",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newImportCmd(&opts),
		newFinalizeCmd(&opts),
		newBackupCmd(&opts),
		newExportCmd(&opts),
		newTraceCmd(&opts),
	)
	return cmd
}
