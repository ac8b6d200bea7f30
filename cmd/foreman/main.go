// Package main is the foreman command line interface.
//
// foreman sequences capability workers into workflow runs, reacts to
// published events, and keeps the resulting records inspectable. Commands
// read a project file (foreman.yaml in the working directory, or the
// --config flag) declaring workers, workflows, schedules and limits; the
// config package documents the format. Without a project file the CLI
// runs with defaults: an in-memory store and nothing registered.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

func main() {
	err := rootCmd().Execute()
	if err == nil {
		return
	}
	var exit *exitCodeError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// exitCodeError carries a run's exit code through cobra without
// printing anything: 0 succeeded, 2 partially failed, 1 failed.
type exitCodeError struct{ code int }

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func rootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "foreman",
		Short: "Workflow orchestration for capability workers",
		Long: `Foreman sequences capability workers into workflow runs: phases execute
in dependency order, outputs travel between workers on an append-only
context bus, and validation loops repeat a phase until its condition
holds or the iteration cap is reached.

Runs start three ways: directly (foreman run), from published events
matching worker trigger predicates (foreman trigger, foreman watch),
and from cron schedules (watch mode fires them).

The project file, foreman.yaml, declares the store backend, workers,
workflows, schedules and limits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"project file (default: foreman.yaml in the working directory)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn",
		"log level (debug, info, warn, error)")

	cmd.AddCommand(
		runCmd(flags),
		triggerCmd(flags),
		watchCmd(flags),
		workersCmd(flags),
		workflowsCmd(flags),
		runsCmd(flags),
		schedulesCmd(flags),
		reportCmd(flags),
		replayCmd(flags),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "foreman %s\n", version)
		},
	}
}
