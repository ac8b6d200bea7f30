package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xraph/foreman/engine"
	"github.com/xraph/foreman/stream"
)

func watchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path ...]",
		Short: "Run the reactor, filesystem watcher, and scheduler",
		Long: `Run foreman as a long-lived process: file changes under the watched
roots publish events, the trigger evaluator matches them against worker
predicates, and schedules fire on their cron expressions.

Roots come from the arguments, then the project file's watch section,
then the current directory. Multiple watch instances sharing a redis
store elect a leader for schedule firing; the memory backend is
single-process only.

Stop with Ctrl-C or SIGTERM.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := loadProject(flags.configPath)
			if err != nil {
				return err
			}

			roots := args
			if len(roots) == 0 {
				for _, r := range project.Watch.Roots {
					roots = append(roots, project.Resolve(r))
				}
			}
			if len(roots) == 0 {
				roots = []string{"."}
			}

			app, err := buildApp(flags, project, engine.WithWatch(roots, project.Watch.Options()...))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.eng.Start(ctx); err != nil {
				app.close(context.Background())
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s watching %s\n",
				runningStyle.Render("▸"), strings.Join(roots, ", "))
			if n := len(app.eng.Workers().List()); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", faintStyle.Render(fmt.Sprintf("%d worker(s) registered", n)))
			}

			sub := app.eng.Broker().Subscribe(stream.TopicFirehose)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for evt := range sub.C() {
					printStreamEvent(cmd.OutOrStdout(), evt)
					sub.AddCredits(1)
				}
			}()

			<-ctx.Done()
			stop()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", faintStyle.Render("shutting down"))

			shutdownCtx, cancel := context.WithTimeout(context.Background(), app.eng.Foreman().Config().ShutdownTimeout)
			defer cancel()
			app.close(shutdownCtx)

			// Engine shutdown closes broker subscribers, ending the
			// print loop.
			<-done
			return nil
		},
	}
}
