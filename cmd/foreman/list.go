package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/xraph/foreman/workflow"
)

// printTable writes rows with two-space column gaps. Cells are padded as
// plain text before styling so ANSI codes don't skew alignment.
func printTable(w io.Writer, headers []string, rows [][]string, cellStyle func(col int, value string) lipgloss.Style) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, v := range row {
			if i < len(widths) && len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(faintStyle.Render(pad(h, widths[i])))
	}
	fmt.Fprintln(w, b.String())

	for _, row := range rows {
		b.Reset()
		for i, v := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			st := lipgloss.NewStyle()
			if cellStyle != nil {
				st = cellStyle(i, v)
			}
			b.WriteString(st.Render(pad(v, widths[i])))
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}

func pad(s string, width int) string {
	if n := width - len(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// ──────────────────────────────────────────────────
// workers
// ──────────────────────────────────────────────────

type workerListItem struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities,omitempty"`
	Triggers     int      `json:"triggers"`
	Timeout      string   `json:"timeout,omitempty"`
	Description  string   `json:"description,omitempty"`
}

func workersCmd(flags *rootFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List registered workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.close(cmd.Context())

			descs := app.eng.Workers().List()
			items := make([]workerListItem, 0, len(descs))
			for _, d := range descs {
				item := workerListItem{
					ID:           d.ID,
					Capabilities: d.Capabilities,
					Triggers:     len(d.Triggers),
					Description:  d.Description,
				}
				if d.Timeout > 0 {
					item.Timeout = d.Timeout.String()
				}
				items = append(items, item)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, faintStyle.Render("no workers registered"))
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, it := range items {
				timeout := it.Timeout
				if timeout == "" {
					timeout = "-"
				}
				rows = append(rows, []string{
					it.ID, strings.Join(it.Capabilities, ","), fmt.Sprint(it.Triggers), timeout, it.Description,
				})
			}
			printTable(out, []string{"ID", "CAPABILITIES", "TRIGGERS", "TIMEOUT", "DESCRIPTION"}, rows, nil)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// ──────────────────────────────────────────────────
// workflows
// ──────────────────────────────────────────────────

type workflowListItem struct {
	Name        string `json:"name"`
	Phases      int    `json:"phases"`
	Workers     int    `json:"workers"`
	Description string `json:"description,omitempty"`
}

func workflowsCmd(flags *rootFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "List registered workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.close(cmd.Context())

			defs := app.eng.Definitions().List()
			items := make([]workflowListItem, 0, len(defs))
			for _, def := range defs {
				workers := 0
				for i := range def.Phases {
					workers += len(def.Phases[i].Workers)
				}
				items = append(items, workflowListItem{
					Name:        def.Name,
					Phases:      len(def.Phases),
					Workers:     workers,
					Description: def.Description,
				})
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, faintStyle.Render("no workflows registered"))
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{
					it.Name, fmt.Sprint(it.Phases), fmt.Sprint(it.Workers), it.Description,
				})
			}
			printTable(out, []string{"NAME", "PHASES", "WORKERS", "DESCRIPTION"}, rows, nil)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// ──────────────────────────────────────────────────
// runs
// ──────────────────────────────────────────────────

type runListItem struct {
	ID       string `json:"id"`
	Workflow string `json:"workflow"`
	Status   string `json:"status"`
	Source   string `json:"source,omitempty"`
	Started  string `json:"started_at,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
}

func runsCmd(flags *rootFlags) *cobra.Command {
	var (
		jsonOut      bool
		workflowName string
		statuses     []string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List workflow runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := workflow.ListOpts{Workflow: workflowName, Limit: limit}
			for _, s := range statuses {
				status := workflow.Status(strings.ToLower(s))
				switch status {
				case workflow.StatusPending, workflow.StatusRunning, workflow.StatusSucceeded,
					workflow.StatusPartiallyFailed, workflow.StatusFailed:
				default:
					return fmt.Errorf("unknown status %q", s)
				}
				opts.Statuses = append(opts.Statuses, status)
			}

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer app.close(ctx)

			runs, err := app.eng.RunStore().ListRuns(ctx, opts)
			if err != nil {
				return err
			}

			now := time.Now()
			items := make([]runListItem, 0, len(runs))
			for _, r := range runs {
				item := runListItem{
					ID:       r.ID.String(),
					Workflow: r.Workflow,
					Status:   string(r.Status),
					Source:   r.Source,
				}
				if r.StartedAt != nil {
					item.Started = r.StartedAt.UTC().Format(time.RFC3339)
					item.Elapsed = formatElapsed(r.Elapsed(now))
				}
				items = append(items, item)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, faintStyle.Render("no runs recorded"))
				return nil
			}

			rows := make([][]string, 0, len(items))
			for i, it := range items {
				started, elapsed := "-", "-"
				if r := runs[i]; r.StartedAt != nil {
					started = ago(*r.StartedAt, now)
					elapsed = it.Elapsed
				}
				rows = append(rows, []string{it.ID, it.Workflow, it.Status, it.Source, started, elapsed})
			}
			printTable(out, []string{"ID", "WORKFLOW", "STATUS", "SOURCE", "STARTED", "ELAPSED"}, rows,
				func(col int, value string) lipgloss.Style {
					if col == 2 {
						return statusStyle(workflow.Status(value))
					}
					return lipgloss.NewStyle()
				})
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.Flags().StringVar(&workflowName, "workflow", "", "only runs of this workflow")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only runs with these statuses")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	return cmd
}

func ago(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Second {
		return "just now"
	}
	return formatElapsed(d) + " ago"
}

// ──────────────────────────────────────────────────
// schedules
// ──────────────────────────────────────────────────

type scheduleListItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Worker   string `json:"worker,omitempty"`
	Workflow string `json:"workflow,omitempty"`
	Enabled  bool   `json:"enabled"`
	NextRun  string `json:"next_run_at,omitempty"`
	LastRun  string `json:"last_run_at,omitempty"`
}

func schedulesCmd(flags *rootFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List schedule entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer app.close(ctx)

			entries, err := app.eng.ScheduleStore().ListSchedules(ctx)
			if err != nil {
				return err
			}

			items := make([]scheduleListItem, 0, len(entries))
			for _, e := range entries {
				item := scheduleListItem{
					ID:       e.ID.String(),
					Name:     e.Name,
					Schedule: e.Schedule,
					Worker:   e.Worker,
					Workflow: e.Workflow,
					Enabled:  e.Enabled,
				}
				if e.NextRunAt != nil {
					item.NextRun = e.NextRunAt.UTC().Format(time.RFC3339)
				}
				if e.LastRunAt != nil {
					item.LastRun = e.LastRunAt.UTC().Format(time.RFC3339)
				}
				items = append(items, item)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, faintStyle.Render("no schedules registered"))
				return nil
			}

			now := time.Now()
			rows := make([][]string, 0, len(items))
			for i, it := range items {
				target := "worker:" + it.Worker
				if it.Workflow != "" {
					target = "workflow:" + it.Workflow
				}
				enabled := "yes"
				if !it.Enabled {
					enabled = "no"
				}
				next, last := "-", "-"
				if e := entries[i]; e.NextRunAt != nil {
					next = "in " + formatElapsed(e.NextRunAt.Sub(now))
					if !e.NextRunAt.After(now) {
						next = "due"
					}
				}
				if e := entries[i]; e.LastRunAt != nil {
					last = ago(*e.LastRunAt, now)
				}
				rows = append(rows, []string{it.Name, it.Schedule, target, enabled, next, last})
			}
			printTable(out, []string{"NAME", "SCHEDULE", "TARGET", "ENABLED", "NEXT RUN", "LAST RUN"}, rows,
				func(col int, value string) lipgloss.Style {
					if col == 3 && value == "no" {
						return faintStyle
					}
					return lipgloss.NewStyle()
				})
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}
