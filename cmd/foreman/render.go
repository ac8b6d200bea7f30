package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xraph/foreman/report"
	"github.com/xraph/foreman/stream"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
)

func statusStyle(s workflow.Status) lipgloss.Style {
	switch s {
	case workflow.StatusSucceeded:
		return successStyle
	case workflow.StatusPartiallyFailed:
		return partialStyle
	case workflow.StatusFailed:
		return failureStyle
	case workflow.StatusRunning:
		return runningStyle
	default:
		return skippedStyle
	}
}

func renderRunStatus(s workflow.Status) string {
	return statusStyle(s).Render(string(s))
}

func renderPhaseStatus(s workflow.PhaseStatus) string {
	return statusStyle(workflow.Status(s)).Render(string(s))
}

func phaseGlyph(s workflow.PhaseStatus) string {
	switch s {
	case workflow.PhaseSucceeded:
		return successStyle.Render("✓")
	case workflow.PhasePartiallyFailed:
		return partialStyle.Render("⚠")
	case workflow.PhaseFailed:
		return failureStyle.Render("✗")
	case workflow.PhaseSkipped:
		return skippedStyle.Render("-")
	default:
		return faintStyle.Render("·")
	}
}

func workerGlyph(s worker.Status) string {
	switch s {
	case worker.StatusSuccess:
		return successStyle.Render("✓")
	case worker.StatusFailure:
		return failureStyle.Render("✗")
	case worker.StatusNeedsFollowUp:
		return partialStyle.Render("⚠")
	default:
		return skippedStyle.Render("-")
	}
}

// renderResult writes the full report of a terminal run: phases in
// declaration order, iterations nested, diagnostics totalled.
func renderResult(w io.Writer, res *report.FinalResult) {
	fmt.Fprintf(w, "\n%s  %s  %s  %s\n\n",
		titleStyle.Render(res.Workflow),
		faintStyle.Render(res.RunID),
		renderRunStatus(res.Status),
		faintStyle.Render(formatElapsed(res.Elapsed)))

	for _, ph := range res.Phases {
		fmt.Fprintf(w, "  %s %s  %s", phaseGlyph(ph.Status), titleStyle.Render(ph.Phase), renderPhaseStatus(ph.Status))
		if n := len(ph.Iterations); n > 1 {
			fmt.Fprintf(w, "  %s", faintStyle.Render(fmt.Sprintf("(%d iterations)", n)))
		}
		fmt.Fprintln(w)

		for _, iter := range ph.Iterations {
			indent := "      "
			if len(ph.Iterations) > 1 {
				fmt.Fprintf(w, "    %s\n", faintStyle.Render(fmt.Sprintf("iteration %d", iter.Iteration)))
				indent = "        "
			}
			for _, wr := range iter.Workers {
				renderWorkerResult(w, indent, wr)
			}
		}
		if ph.Error != "" {
			fmt.Fprintf(w, "      %s\n", failureStyle.Render(ph.Error))
		}
	}

	if total := res.Counts.Total(); total > 0 {
		fmt.Fprintf(w, "\n  %s\n", formatCounts(res.Counts))
	}
	if res.Error != "" {
		fmt.Fprintf(w, "\n  %s\n", failureStyle.Render("error: "+res.Error))
	}
	fmt.Fprintln(w)
}

func renderWorkerResult(w io.Writer, indent string, wr report.WorkerResult) {
	line := fmt.Sprintf("%s%s %s", indent, workerGlyph(wr.Status), wr.Worker)
	if wr.Advisory {
		line += faintStyle.Render(" (advisory)")
	}
	if n := len(wr.Diagnostics); n > 0 {
		line += faintStyle.Render(fmt.Sprintf("  %d finding(s)", n))
	}
	if wr.Elapsed > 0 {
		line += faintStyle.Render("  " + formatElapsed(wr.Elapsed))
	}
	fmt.Fprintln(w, line)
	if wr.Error != "" {
		fmt.Fprintf(w, "%s  %s\n", indent, failureStyle.Render(wr.Error))
	}
}

// formatCounts renders the non-zero severity tallies.
func formatCounts(c report.Counts) string {
	parts := make([]string, 0, 5)
	if c.Critical > 0 {
		parts = append(parts, failureStyle.Render(fmt.Sprintf("%d critical", c.Critical)))
	}
	if c.High > 0 {
		parts = append(parts, failureStyle.Render(fmt.Sprintf("%d high", c.High)))
	}
	if c.Medium > 0 {
		parts = append(parts, partialStyle.Render(fmt.Sprintf("%d medium", c.Medium)))
	}
	if c.Low > 0 {
		parts = append(parts, fmt.Sprintf("%d low", c.Low))
	}
	if c.Info > 0 {
		parts = append(parts, faintStyle.Render(fmt.Sprintf("%d info", c.Info)))
	}
	out := "diagnostics:"
	for _, p := range parts {
		out += " " + p
	}
	return out
}

func formatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// printStreamEvent renders one broker event as a progress line. Used by
// run --follow and watch mode.
func printStreamEvent(w io.Writer, evt *stream.Event) {
	switch evt.Type {
	case stream.EventRunStarted:
		var d stream.RunEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		fmt.Fprintf(w, "%s run %s %s\n", runningStyle.Render("▸"), titleStyle.Render(d.Workflow), faintStyle.Render(d.RunID))

	case stream.EventRunCompleted:
		var d stream.RunEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		fmt.Fprintf(w, "%s run %s %s %s\n", phaseGlyphForRun(d.Status), titleStyle.Render(d.Workflow),
			renderRunStatus(workflow.Status(d.Status)), faintStyle.Render(formatElapsed(time.Duration(d.ElapsedMs)*time.Millisecond)))

	case stream.EventRunFailed:
		var d stream.RunEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		fmt.Fprintf(w, "%s run %s failed: %s\n", failureStyle.Render("✗"), titleStyle.Render(d.Workflow), d.Error)

	case stream.EventPhaseStarted:
		var d stream.PhaseEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		if d.Iteration > 1 {
			fmt.Fprintf(w, "  %s phase %s %s\n", runningStyle.Render("▸"), d.Phase,
				faintStyle.Render(fmt.Sprintf("(iteration %d)", d.Iteration)))
			return
		}
		fmt.Fprintf(w, "  %s phase %s\n", runningStyle.Render("▸"), d.Phase)

	case stream.EventPhaseCompleted:
		var d stream.PhaseEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		status := workflow.PhaseStatus(d.Status)
		fmt.Fprintf(w, "  %s phase %s %s %s\n", phaseGlyph(status), d.Phase, renderPhaseStatus(status),
			faintStyle.Render(formatElapsed(time.Duration(d.ElapsedMs)*time.Millisecond)))

	case stream.EventLoopIterated:
		var d stream.PhaseEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		verdict := partialStyle.Render("unsatisfied")
		if d.Satisfied {
			verdict = successStyle.Render("satisfied")
		}
		fmt.Fprintf(w, "  %s loop %s iteration %d %s\n", faintStyle.Render("⟳"), d.Phase, d.Iteration, verdict)

	case stream.EventWorkerCompleted:
		var d stream.WorkerEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		fmt.Fprintf(w, "    %s %s %s %s\n", workerGlyph(worker.Status(d.Status)), d.Worker,
			faintStyle.Render(d.Status), faintStyle.Render(formatElapsed(time.Duration(d.ElapsedMs)*time.Millisecond)))

	case stream.EventWorkerFailed:
		var d stream.WorkerEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		fmt.Fprintf(w, "    %s %s: %s\n", failureStyle.Render("✗"), d.Worker, d.Error)

	case stream.EventWorkerDeadLettered:
		var d stream.WorkerEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		fmt.Fprintf(w, "    %s %s dead-lettered\n", failureStyle.Render("☠"), d.Worker)

	case stream.EventTriggerMatched:
		var d stream.TriggerEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		fmt.Fprintf(w, "%s trigger %s matched worker %s\n", promptStyle.Render("⚡"), faintStyle.Render(d.Kind), d.Worker)

	case stream.EventScheduleFired:
		var d stream.ScheduleEventData
		if json.Unmarshal(evt.Data, &d) != nil {
			return
		}
		fmt.Fprintf(w, "%s schedule %s fired\n", promptStyle.Render("⏰"), d.EntryName)
	}
}

func phaseGlyphForRun(status string) string {
	switch workflow.Status(status) {
	case workflow.StatusSucceeded:
		return successStyle.Render("✓")
	case workflow.StatusPartiallyFailed:
		return partialStyle.Render("⚠")
	default:
		return failureStyle.Render("✗")
	}
}
