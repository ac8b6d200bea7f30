package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/xraph/foreman/dlq"
	"github.com/xraph/foreman/id"
)

func replayCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay [entry-id]",
		Short: "List dead-lettered invocations, or replay one",
		Long: `Without an argument, list dead letter queue entries newest first.
With an entry ID, republish the failed invocation as an explicit
command event.

The replayed event is consumed by a running reactor. With the memory
backend start a run in the same process; with redis a separate
"foreman watch" instance sharing the store picks it up.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer app.close(ctx)

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				entries, err := app.eng.DLQService().DLQStore().ListDLQ(ctx, dlq.ListOpts{Limit: limit})
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, faintStyle.Render("dead letter queue is empty"))
					return nil
				}

				now := time.Now()
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					replayed := "-"
					if e.ReplayedAt != nil {
						replayed = ago(*e.ReplayedAt, now)
					}
					rows = append(rows, []string{
						e.ID.String(), e.Worker, e.Workflow, e.Phase, ago(e.FailedAt, now), replayed, e.Error,
					})
				}
				printTable(out, []string{"ID", "WORKER", "WORKFLOW", "PHASE", "FAILED", "REPLAYED", "ERROR"}, rows,
					func(col int, _ string) lipgloss.Style {
						if col == 6 {
							return failureStyle
						}
						return lipgloss.NewStyle()
					})
				return nil
			}

			entryID, err := id.ParseDeadLetterID(args[0])
			if err != nil {
				return err
			}
			evt, err := app.eng.Replay(ctx, entryID)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "replay queued: event %s\n", faintStyle.Render(evt.ID.String()))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to list (0 for all)")
	return cmd
}
