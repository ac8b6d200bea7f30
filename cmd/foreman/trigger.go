package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/foreman/event"
)

func triggerCmd(flags *rootFlags) *cobra.Command {
	var (
		workerID     string
		workflowName string
	)

	cmd := &cobra.Command{
		Use:   "trigger <kind> [text]",
		Short: "Publish an event to the bus",
		Long: `Publish an event for the trigger evaluator.

Kinds:
  file_changed      text is the changed path
  error_observed    text is the error message
  explicit_command  names a worker (--worker) or workflow (--workflow)
                    directly; text is passed as the command argument

The event is consumed by a running reactor. With the memory backend that
means a "foreman watch" process sharing this one's store does not exist;
use the redis backend to trigger a watch instance from another process.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 2 {
				text = args[1]
			}

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer app.close(ctx)

			var evt *event.Event
			switch event.Kind(args[0]) {
			case event.KindFileChanged:
				if text == "" {
					return fmt.Errorf("file_changed: path argument required")
				}
				evt = event.NewFileChanged(text, "write", "cli")
				err = app.eng.Publish(ctx, evt)

			case event.KindErrorObserved:
				if text == "" {
					return fmt.Errorf("error_observed: message argument required")
				}
				evt = event.NewErrorObserved(text, "cli", "cli")
				err = app.eng.Publish(ctx, evt)

			case event.KindExplicitCommand:
				if (workerID == "") == (workflowName == "") {
					return fmt.Errorf("explicit_command: exactly one of --worker or --workflow required")
				}
				payload := event.ExplicitCommandPayload{
					Worker:   workerID,
					Workflow: workflowName,
					Text:     text,
				}
				evt, err = app.eng.TriggerCommand(ctx, payload, "cli")

			default:
				return fmt.Errorf("unknown event kind %q", args[0])
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %s %s\n", evt.Kind, faintStyle.Render(evt.ID.String()))
			return nil
		},
	}

	cmd.Flags().StringVar(&workerID, "worker", "", "worker to dispatch (explicit_command)")
	cmd.Flags().StringVar(&workflowName, "workflow", "", "workflow to run (explicit_command)")
	return cmd
}
