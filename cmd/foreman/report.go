package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/foreman/id"
)

func reportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report <run-id>",
		Short: "Render the final report of a terminal run",
		Long: `Re-aggregate a run's invocation records into its final report.

The run must have reached a terminal status. The exit code mirrors the
run outcome: 0 succeeded, 2 partially failed, 1 failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := id.ParseRunID(args[0])
			if err != nil {
				return err
			}

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer app.close(ctx)

			res, err := app.eng.Report(ctx, runID)
			if err != nil {
				return err
			}

			renderResult(os.Stdout, res)
			if code := res.ExitCode(); code != 0 {
				return &exitCodeError{code}
			}
			return nil
		},
	}
}
