package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xraph/foreman/audit"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/ext"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit entries for verification.
type mockRecorder struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (m *mockRecorder) Record(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRecorder) last() *audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockRecorder) findByAction(action string) *audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Action == action {
			return e
		}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ── Test helpers ─────────────────────────────────────

func newTestRun() *workflow.Run {
	return &workflow.Run{
		ID:       id.NewRunID(),
		Workflow: "review",
		Status:   workflow.StatusRunning,
		Source:   "cli",
	}
}

func newTestInvocation() *worker.Invocation {
	return &worker.Invocation{
		ID:        id.NewInvocationID(),
		RunID:     id.NewRunID(),
		Workflow:  "review",
		Phase:     "analyze",
		Iteration: 0,
		Worker:    "linter",
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	if e.Name() != "audit-trail" {
		t.Errorf("expected name %q, got %q", "audit-trail", e.Name())
	}
}

// ── Run lifecycle tests ──────────────────────────────

func TestExtension_RunStarted(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	r := newTestRun()

	if err := e.OnRunStarted(context.Background(), r); err != nil {
		t.Fatalf("OnRunStarted: %v", err)
	}

	entry := rec.last()
	if entry == nil {
		t.Fatal("no entry recorded")
	}
	if entry.Action != audit.ActionRunStarted {
		t.Errorf("Action: want %q, got %q", audit.ActionRunStarted, entry.Action)
	}
	if entry.Resource != audit.ResourceRun {
		t.Errorf("Resource: want %q, got %q", audit.ResourceRun, entry.Resource)
	}
	if entry.Category != audit.CategoryRun {
		t.Errorf("Category: want %q, got %q", audit.CategoryRun, entry.Category)
	}
	if entry.ResourceID != r.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", r.ID.String(), entry.ResourceID)
	}
	if entry.Severity != audit.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", audit.SeverityInfo, entry.Severity)
	}
	if entry.Outcome != audit.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", audit.OutcomeSuccess, entry.Outcome)
	}
	if entry.Metadata["workflow"] != "review" {
		t.Errorf("Metadata[workflow]: want %q, got %v", "review", entry.Metadata["workflow"])
	}
	if entry.Metadata["source"] != "cli" {
		t.Errorf("Metadata[source]: want %q, got %v", "cli", entry.Metadata["source"])
	}
}

func TestExtension_PhaseCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	r := newTestRun()

	if err := e.OnPhaseCompleted(context.Background(), r, "analyze", workflow.PhaseSucceeded, 200*time.Millisecond); err != nil {
		t.Fatalf("OnPhaseCompleted: %v", err)
	}

	entry := rec.last()
	if entry.Action != audit.ActionPhaseCompleted {
		t.Errorf("Action: want %q, got %q", audit.ActionPhaseCompleted, entry.Action)
	}
	if entry.Metadata["phase"] != "analyze" {
		t.Errorf("Metadata[phase]: want %q, got %v", "analyze", entry.Metadata["phase"])
	}
	if entry.Metadata["status"] != string(workflow.PhaseSucceeded) {
		t.Errorf("Metadata[status]: want %q, got %v", workflow.PhaseSucceeded, entry.Metadata["status"])
	}
	if entry.Metadata["elapsed_ms"] != int64(200) {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", 200, entry.Metadata["elapsed_ms"])
	}
}

func TestExtension_LoopIterated(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	r := newTestRun()

	if err := e.OnLoopIterated(context.Background(), r, "fix", 2, false); err != nil {
		t.Fatalf("OnLoopIterated: %v", err)
	}

	entry := rec.last()
	if entry.Action != audit.ActionLoopIterated {
		t.Errorf("Action: want %q, got %q", audit.ActionLoopIterated, entry.Action)
	}
	if entry.Metadata["iteration"] != 2 {
		t.Errorf("Metadata[iteration]: want %d, got %v", 2, entry.Metadata["iteration"])
	}
	if entry.Metadata["satisfied"] != false {
		t.Errorf("Metadata[satisfied]: want false, got %v", entry.Metadata["satisfied"])
	}
}

func TestExtension_RunFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	r := newTestRun()
	runErr := errors.New("phase build: worker compiler: exit status 1")

	if err := e.OnRunFailed(context.Background(), r, runErr); err != nil {
		t.Fatalf("OnRunFailed: %v", err)
	}

	entry := rec.last()
	if entry.Action != audit.ActionRunFailed {
		t.Errorf("Action: want %q, got %q", audit.ActionRunFailed, entry.Action)
	}
	if entry.Severity != audit.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", audit.SeverityCritical, entry.Severity)
	}
	if entry.Outcome != audit.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", audit.OutcomeFailure, entry.Outcome)
	}
	if entry.Reason != runErr.Error() {
		t.Errorf("Reason: want %q, got %q", runErr.Error(), entry.Reason)
	}
	if entry.Metadata["error"] != runErr.Error() {
		t.Errorf("Metadata[error]: want %q, got %v", runErr.Error(), entry.Metadata["error"])
	}
}

// ── Worker lifecycle tests ───────────────────────────

func TestExtension_WorkerCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	inv := newTestInvocation()
	out := &worker.Outcome{Status: worker.StatusSuccess}

	if err := e.OnWorkerCompleted(context.Background(), inv, out, 150*time.Millisecond); err != nil {
		t.Fatalf("OnWorkerCompleted: %v", err)
	}

	entry := rec.last()
	if entry.Action != audit.ActionWorkerCompleted {
		t.Errorf("Action: want %q, got %q", audit.ActionWorkerCompleted, entry.Action)
	}
	if entry.Resource != audit.ResourceInvocation {
		t.Errorf("Resource: want %q, got %q", audit.ResourceInvocation, entry.Resource)
	}
	if entry.ResourceID != inv.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", inv.ID.String(), entry.ResourceID)
	}
	if entry.Metadata["worker"] != "linter" {
		t.Errorf("Metadata[worker]: want %q, got %v", "linter", entry.Metadata["worker"])
	}
	if entry.Metadata["status"] != string(worker.StatusSuccess) {
		t.Errorf("Metadata[status]: want %q, got %v", worker.StatusSuccess, entry.Metadata["status"])
	}
	if entry.Metadata["elapsed_ms"] != int64(150) {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", 150, entry.Metadata["elapsed_ms"])
	}
}

func TestExtension_WorkerFailed_Critical(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	inv := newTestInvocation()

	if err := e.OnWorkerFailed(context.Background(), inv, errors.New("exit status 1")); err != nil {
		t.Fatalf("OnWorkerFailed: %v", err)
	}

	entry := rec.last()
	if entry.Severity != audit.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", audit.SeverityCritical, entry.Severity)
	}
	if entry.Metadata["advisory"] != false {
		t.Errorf("Metadata[advisory]: want false, got %v", entry.Metadata["advisory"])
	}
}

func TestExtension_WorkerFailed_AdvisoryIsWarning(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	inv := newTestInvocation()
	inv.Advisory = true

	if err := e.OnWorkerFailed(context.Background(), inv, errors.New("doc style check failed")); err != nil {
		t.Fatalf("OnWorkerFailed: %v", err)
	}

	entry := rec.last()
	if entry.Severity != audit.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", audit.SeverityWarning, entry.Severity)
	}
	if entry.Metadata["advisory"] != true {
		t.Errorf("Metadata[advisory]: want true, got %v", entry.Metadata["advisory"])
	}
}

func TestExtension_WorkerDeadLettered(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	inv := newTestInvocation()

	if err := e.OnWorkerDeadLettered(context.Background(), inv, errors.New("timed out after 30s")); err != nil {
		t.Fatalf("OnWorkerDeadLettered: %v", err)
	}

	entry := rec.last()
	if entry.Action != audit.ActionWorkerDeadLettered {
		t.Errorf("Action: want %q, got %q", audit.ActionWorkerDeadLettered, entry.Action)
	}
	if entry.Severity != audit.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", audit.SeverityCritical, entry.Severity)
	}
	if entry.Metadata["error"] != "timed out after 30s" {
		t.Errorf("Metadata[error]: want %q, got %v", "timed out after 30s", entry.Metadata["error"])
	}
}

// ── Trigger and schedule tests ───────────────────────

func TestExtension_TriggerMatched(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	evt := event.NewFileChanged("internal/auth/login.go", "write", "watch")

	if err := e.OnTriggerMatched(context.Background(), evt, "linter"); err != nil {
		t.Fatalf("OnTriggerMatched: %v", err)
	}

	entry := rec.last()
	if entry.Action != audit.ActionTriggerMatched {
		t.Errorf("Action: want %q, got %q", audit.ActionTriggerMatched, entry.Action)
	}
	if entry.Resource != audit.ResourceEvent {
		t.Errorf("Resource: want %q, got %q", audit.ResourceEvent, entry.Resource)
	}
	if entry.ResourceID != evt.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", evt.ID.String(), entry.ResourceID)
	}
	if entry.Metadata["kind"] != string(event.KindFileChanged) {
		t.Errorf("Metadata[kind]: want %q, got %v", event.KindFileChanged, entry.Metadata["kind"])
	}
	if entry.Metadata["worker"] != "linter" {
		t.Errorf("Metadata[worker]: want %q, got %v", "linter", entry.Metadata["worker"])
	}
}

func TestExtension_ScheduleFired(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)
	eventID := id.NewEventID()

	if err := e.OnScheduleFired(context.Background(), "nightly-audit", eventID); err != nil {
		t.Fatalf("OnScheduleFired: %v", err)
	}

	entry := rec.last()
	if entry.Action != audit.ActionScheduleFired {
		t.Errorf("Action: want %q, got %q", audit.ActionScheduleFired, entry.Action)
	}
	if entry.Resource != audit.ResourceSchedule {
		t.Errorf("Resource: want %q, got %q", audit.ResourceSchedule, entry.Resource)
	}
	if entry.ResourceID != "nightly-audit" {
		t.Errorf("ResourceID: want %q, got %q", "nightly-audit", entry.ResourceID)
	}
	if entry.Metadata["event_id"] != eventID.String() {
		t.Errorf("Metadata[event_id]: want %q, got %v", eventID.String(), entry.Metadata["event_id"])
	}
}

// ── WithActions filter tests ─────────────────────────

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec, audit.WithActions(audit.ActionRunCompleted, audit.ActionRunFailed))

	ctx := context.Background()
	r := newTestRun()

	// Started is NOT enabled — silently skipped.
	if err := e.OnRunStarted(ctx, r); err != nil {
		t.Fatalf("OnRunStarted: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 entries (started disabled), got %d", rec.count())
	}

	// Completed IS enabled.
	if err := e.OnRunCompleted(ctx, r, time.Second); err != nil {
		t.Fatalf("OnRunCompleted: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 entry (completed enabled), got %d", rec.count())
	}

	// Failed IS enabled.
	if err := e.OnRunFailed(ctx, r, errors.New("boom")); err != nil {
		t.Fatalf("OnRunFailed: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 entries, got %d", rec.count())
	}
}

// ── RecorderFunc adapter test ────────────────────────

func TestRecorderFunc(t *testing.T) {
	var captured *audit.Entry
	fn := audit.RecorderFunc(func(_ context.Context, e *audit.Entry) error {
		captured = e
		return nil
	})

	e := audit.New(fn)

	if err := e.OnRunStarted(context.Background(), newTestRun()); err != nil {
		t.Fatalf("OnRunStarted: %v", err)
	}
	if captured == nil {
		t.Fatal("RecorderFunc was not called")
	}
	if captured.Action != audit.ActionRunStarted {
		t.Errorf("Action: want %q, got %q", audit.ActionRunStarted, captured.Action)
	}
}

// ── Recorder error handling test ─────────────────────

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failingRecorder := audit.RecorderFunc(func(_ context.Context, _ *audit.Entry) error {
		return errors.New("audit backend down")
	})

	e := audit.New(failingRecorder, audit.WithLogger(discardLogger()))

	// Hook must NOT return an error. Audit failures never block a run.
	if err := e.OnRunStarted(context.Background(), newTestRun()); err != nil {
		t.Fatalf("expected no error (audit failure swallowed), got: %v", err)
	}
}

// ── Registry integration test ────────────────────────

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	e := audit.New(rec)

	reg := ext.NewRegistry(discardLogger())
	reg.Register(e)

	ctx := context.Background()
	r := newTestRun()
	inv := newTestInvocation()
	out := &worker.Outcome{Status: worker.StatusSuccess}
	evt := event.NewFileChanged("main.go", "write", "watch")

	reg.EmitRunStarted(ctx, r)
	reg.EmitPhaseStarted(ctx, r, "analyze", 0)
	reg.EmitPhaseCompleted(ctx, r, "analyze", workflow.PhaseSucceeded, time.Second)
	reg.EmitLoopIterated(ctx, r, "fix", 1, true)
	reg.EmitRunCompleted(ctx, r, 2*time.Second)
	reg.EmitRunFailed(ctx, r, errors.New("fail"))
	reg.EmitWorkerDispatched(ctx, inv)
	reg.EmitWorkerCompleted(ctx, inv, out, 50*time.Millisecond)
	reg.EmitWorkerFailed(ctx, inv, errors.New("bad"))
	reg.EmitWorkerDeadLettered(ctx, inv, errors.New("dead"))
	reg.EmitTriggerMatched(ctx, evt, "linter")
	reg.EmitScheduleFired(ctx, "hourly", id.NewEventID())

	// Verify all 12 actions were recorded.
	allActions := audit.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d entries, got %d", len(allActions), rec.count())
	}

	for _, action := range allActions {
		if rec.findByAction(action) == nil {
			t.Errorf("missing entry for action %q", action)
		}
	}
}

// ── AllActions test ──────────────────────────────────

func TestAllActions(t *testing.T) {
	actions := audit.AllActions()
	if len(actions) != 12 {
		t.Errorf("expected 12 actions, got %d", len(actions))
	}
}

// ── FileRecorder tests ───────────────────────────────

func TestFileRecorder_AppendsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	rec, err := audit.NewFileRecorder(path)
	if err != nil {
		t.Fatalf("NewFileRecorder: %v", err)
	}
	defer rec.Close()

	e := audit.New(rec)
	ctx := context.Background()
	r := newTestRun()

	if err := e.OnRunStarted(ctx, r); err != nil {
		t.Fatalf("OnRunStarted: %v", err)
	}
	if err := e.OnRunCompleted(ctx, r, time.Second); err != nil {
		t.Fatalf("OnRunCompleted: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var actions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry struct {
			Time   time.Time `json:"time"`
			Action string    `json:"action"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		if entry.Time.IsZero() {
			t.Error("entry missing timestamp")
		}
		actions = append(actions, entry.Action)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := []string{audit.ActionRunStarted, audit.ActionRunCompleted}
	if len(actions) != len(want) {
		t.Fatalf("got %d lines, want %d", len(actions), len(want))
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, actions[i], want[i])
		}
	}
}
