package dlq_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xraph/foreman"
	foremanDLQ "github.com/xraph/foreman/dlq"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/store/memory"
	"github.com/xraph/foreman/worker"
)

func newFailedInvocation(workerID string, inputs map[string]json.RawMessage) *worker.Invocation {
	now := time.Now().UTC()
	return &worker.Invocation{
		Entity:    foreman.Entity{CreatedAt: now, UpdatedAt: now},
		ID:        id.NewInvocationID(),
		RunID:     id.NewRunID(),
		Workflow:  "quality-sprint",
		Phase:     "review",
		Iteration: 3,
		Worker:    workerID,
		Inputs:    inputs,
		Status:    worker.StatusFailure,
	}
}

func TestService_Push_BuildsEntryFromInvocation(t *testing.T) {
	s := memory.New()
	svc := foremanDLQ.NewService(s, s)
	ctx := context.Background()

	inputs := map[string]json.RawMessage{"target": json.RawMessage(`"./internal/auth"`)}
	inv := newFailedInvocation("code-reviewer", inputs)
	invErr := errors.New("review agent crashed")

	if err := svc.Push(ctx, inv, invErr); err != nil {
		t.Fatalf("Push: %v", err)
	}

	// Verify entry in store.
	entries, err := s.ListDLQ(ctx, foremanDLQ.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.InvocationID != inv.ID {
		t.Errorf("InvocationID = %v, want %v", entry.InvocationID, inv.ID)
	}
	if entry.RunID != inv.RunID {
		t.Errorf("RunID = %v, want %v", entry.RunID, inv.RunID)
	}
	if entry.Worker != "code-reviewer" {
		t.Errorf("Worker = %q, want %q", entry.Worker, "code-reviewer")
	}
	if entry.Workflow != "quality-sprint" || entry.Phase != "review" {
		t.Errorf("coordinates = %s/%s", entry.Workflow, entry.Phase)
	}
	if entry.Iteration != 3 {
		t.Errorf("Iteration = %d, want 3", entry.Iteration)
	}
	if string(entry.Inputs["target"]) != `"./internal/auth"` {
		t.Errorf("Inputs[target] = %s", entry.Inputs["target"])
	}
	if entry.Error != "review agent crashed" {
		t.Errorf("Error = %q", entry.Error)
	}
	if entry.FailedAt.IsZero() {
		t.Error("expected FailedAt to be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestService_Push_CountIncreases(t *testing.T) {
	s := memory.New()
	svc := foremanDLQ.NewService(s, s)
	ctx := context.Background()

	for i := range 3 {
		inv := newFailedInvocation("worker-"+string(rune('a'+i)), nil)
		if err := svc.Push(ctx, inv, errors.New("fail")); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	count, err := s.CountDLQ(ctx)
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 3 {
		t.Errorf("CountDLQ = %d, want 3", count)
	}
}

func TestService_Replay_PublishesExplicitCommand(t *testing.T) {
	s := memory.New()
	svc := foremanDLQ.NewService(s, s)
	ctx := context.Background()

	inputs := map[string]json.RawMessage{"target": json.RawMessage(`"./pkg"`)}
	inv := newFailedInvocation("security-scanner", inputs)
	if err := svc.Push(ctx, inv, errors.New("scan aborted")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, foremanDLQ.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}
	entryID := entries[0].ID

	evt, err := svc.Replay(ctx, entryID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if evt.Kind != event.KindExplicitCommand {
		t.Errorf("Kind = %q, want %q", evt.Kind, event.KindExplicitCommand)
	}
	var p event.ExplicitCommandPayload
	if err := evt.Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Worker != "security-scanner" {
		t.Errorf("payload Worker = %q", p.Worker)
	}
	if p.Args["target"] != "./pkg" {
		t.Errorf("payload Args = %v", p.Args)
	}

	// The event must be in the store for the reactor to claim.
	got, err := s.GetEvent(ctx, evt.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Kind != event.KindExplicitCommand {
		t.Errorf("stored Kind = %q", got.Kind)
	}
}

func TestService_Replay_MarksEntryAsReplayed(t *testing.T) {
	s := memory.New()
	svc := foremanDLQ.NewService(s, s)
	ctx := context.Background()

	inv := newFailedInvocation("doc-writer", nil)
	if err := svc.Push(ctx, inv, errors.New("fail")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, foremanDLQ.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	entryID := entries[0].ID

	if _, replayErr := svc.Replay(ctx, entryID); replayErr != nil {
		t.Fatalf("Replay: %v", replayErr)
	}

	// Check that ReplayedAt is set.
	entry, err := s.GetDLQ(ctx, entryID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("expected ReplayedAt to be set after replay")
	}
}

func TestService_Replay_NotFoundReturnsError(t *testing.T) {
	s := memory.New()
	svc := foremanDLQ.NewService(s, s)
	ctx := context.Background()

	fakeID := id.NewDeadLetterID()
	_, err := svc.Replay(ctx, fakeID)
	if err == nil {
		t.Fatal("expected error for non-existent DLQ entry")
	}
}
