package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/foreman/engine"
	"github.com/xraph/foreman/orchestrator"
	"github.com/xraph/foreman/stream"
)

func runCmd(flags *rootFlags) *cobra.Command {
	var (
		focus         []string
		interactive   bool
		maxIterations int
		follow        bool
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <workflow> [arg]",
		Short: "Execute a workflow and report the outcome",
		Long: `Run executes the named workflow to completion and renders the final
report. The optional free-form argument is seeded onto the context bus
as the "argument" input field, where workers can declare it as a
contract input.

The process exit code follows the run status: 0 succeeded, 2 partially
failed, 1 failed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var engOpts []engine.Option
			if interactive {
				engOpts = append(engOpts, engine.WithApprover(terminalApprover(os.Stdin, os.Stderr)))
			}

			app, err := newApp(flags, engOpts...)
			if err != nil {
				return err
			}
			defer app.close(context.Background())

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			opts := orchestrator.StartOptions{
				Focus:         focus,
				Interactive:   interactive,
				MaxIterations: maxIterations,
				Source:        "cli",
			}
			if len(args) == 2 {
				opts.Seed = map[string]any{"argument": args[1]}
			}

			var (
				sub  *stream.Subscriber
				done chan struct{}
			)
			if follow {
				sub = app.eng.Broker().Subscribe(stream.TopicFirehose)
				done = make(chan struct{})
				go func() {
					defer close(done)
					for evt := range sub.C() {
						printStreamEvent(os.Stdout, evt)
						sub.AddCredits(1)
					}
				}()
			}

			run, err := app.eng.StartRun(ctx, args[0], opts)
			if follow {
				app.eng.Broker().RemoveSubscriber(sub.ID())
				<-done
			}
			if err != nil {
				return err
			}

			// The run is terminal; aggregate on a fresh context so a
			// --timeout that fired doesn't block the report.
			res, err := app.eng.Report(context.Background(), run.ID)
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

	cmd.Flags().StringSliceVar(&focus, "focus", nil,
		"restrict dispatch to workers matching these ids or capability tags")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"pause for approval after each phase")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0,
		"override every loop's iteration cap")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false,
		"stream phase and worker progress while the run executes")
	cmd.Flags().DurationVar(&timeout, "timeout", 0,
		"abort the run after this duration")
	return cmd
}

// terminalApprover prompts the operator for interactive gates and
// trigger confirmations. Enter or "y" approves.
func terminalApprover(in io.Reader, out io.Writer) orchestrator.Approver {
	reader := bufio.NewReader(in)
	var mu sync.Mutex

	return orchestrator.ApproverFunc(func(_ context.Context, req orchestrator.ApprovalRequest) (bool, error) {
		mu.Lock()
		defer mu.Unlock()

		switch {
		case req.Run != nil:
			fmt.Fprintf(out, "\n%s phase %q complete. Continue? [Y/n] ",
				promptStyle.Render("?"), req.Phase)
		default:
			fmt.Fprintf(out, "\n%s %s. Allow worker %q? [Y/n] ",
				promptStyle.Render("?"), req.Reason, req.Worker)
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	})
}
