package workflow_test

import (
	"testing"
	"time"

	"github.com/xraph/foreman/workflow"
)

func TestNewRunCursors(t *testing.T) {
	def := qualityDef()
	def.Normalize(3)

	now := time.Now()
	run := workflow.NewRun(def, now)

	if run.ID.IsNil() {
		t.Error("run ID is nil")
	}
	if run.Workflow != "quality-sprint" {
		t.Errorf("Workflow = %q", run.Workflow)
	}
	if run.Status != workflow.StatusPending {
		t.Errorf("Status = %q, want pending", run.Status)
	}
	if len(run.Phases) != len(def.Phases) {
		t.Fatalf("cursors = %d, want %d", len(run.Phases), len(def.Phases))
	}
	for _, p := range def.Phases {
		c := run.Phase(p.Name)
		if c == nil {
			t.Fatalf("no cursor for %q", p.Name)
		}
		if c.Status != workflow.PhasePending || c.Iterations != 0 {
			t.Errorf("cursor %q = %+v", p.Name, c)
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	def := qualityDef()
	def.Normalize(3)
	start := time.Now()
	run := workflow.NewRun(def, start)

	run.MarkRunning(start)
	if run.Status != workflow.StatusRunning || run.StartedAt == nil {
		t.Errorf("after MarkRunning: status=%q started=%v", run.Status, run.StartedAt)
	}

	end := start.Add(90 * time.Second)
	run.MarkCompleted(workflow.StatusSucceeded, end)
	if run.Status != workflow.StatusSucceeded || run.CompletedAt == nil {
		t.Errorf("after MarkCompleted: status=%q completed=%v", run.Status, run.CompletedAt)
	}
	if got := run.Elapsed(end.Add(time.Hour)); got != 90*time.Second {
		t.Errorf("Elapsed = %v, want 90s", got)
	}
}

func TestMarkCompletedIgnoresNonTerminal(t *testing.T) {
	def := qualityDef()
	def.Normalize(3)
	run := workflow.NewRun(def, time.Now())
	run.MarkCompleted(workflow.StatusRunning, time.Now())
	if run.Status != workflow.StatusPending {
		t.Errorf("Status = %q, want pending", run.Status)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[workflow.Status]bool{
		workflow.StatusPending:         false,
		workflow.StatusRunning:         false,
		workflow.StatusSucceeded:       true,
		workflow.StatusPartiallyFailed: true,
		workflow.StatusFailed:          true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Errorf("%q.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name   string
		phases map[string]workflow.PhaseStatus
		want   workflow.Status
	}{
		{
			name: "all succeeded",
			phases: map[string]workflow.PhaseStatus{
				"a": workflow.PhaseSucceeded, "b": workflow.PhaseSucceeded,
			},
			want: workflow.StatusSucceeded,
		},
		{
			name: "hard failure fails the run",
			phases: map[string]workflow.PhaseStatus{
				"a": workflow.PhaseSucceeded, "b": workflow.PhaseFailed,
			},
			want: workflow.StatusFailed,
		},
		{
			name: "loop exhausted counts as partial",
			phases: map[string]workflow.PhaseStatus{
				"a": workflow.PhaseSucceeded, "b": workflow.PhasePartiallyFailed,
			},
			want: workflow.StatusPartiallyFailed,
		},
		{
			name: "all failed",
			phases: map[string]workflow.PhaseStatus{
				"a": workflow.PhaseFailed, "b": workflow.PhaseFailed,
			},
			want: workflow.StatusFailed,
		},
		{
			name: "skipped only",
			phases: map[string]workflow.PhaseStatus{
				"a": workflow.PhaseSkipped, "b": workflow.PhaseSkipped,
			},
			want: workflow.StatusFailed,
		},
		{
			name: "succeeded plus skipped",
			phases: map[string]workflow.PhaseStatus{
				"a": workflow.PhaseSucceeded, "b": workflow.PhaseSkipped,
			},
			want: workflow.StatusSucceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &workflow.Run{Phases: map[string]*workflow.PhaseCursor{}}
			for name, status := range tt.phases {
				run.Phases[name] = &workflow.PhaseCursor{Status: status}
			}
			if got := run.Derive(); got != tt.want {
				t.Errorf("Derive = %q, want %q", got, tt.want)
			}
		})
	}
}
