package scope_test

import (
	"context"
	"testing"

	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/scope"
)

func TestRestoreAndFrom(t *testing.T) {
	runID := id.NewRunID()
	s := scope.Scope{
		RunID:     runID,
		Workflow:  "quality-sprint",
		Phase:     "review",
		Iteration: 2,
		Worker:    "code-reviewer",
	}

	ctx := scope.Restore(context.Background(), s)

	got, ok := scope.From(ctx)
	if !ok {
		t.Fatal("From: scope not found after Restore")
	}
	if got.RunID != runID {
		t.Errorf("RunID = %v, want %v", got.RunID, runID)
	}
	if got.Workflow != "quality-sprint" || got.Phase != "review" {
		t.Errorf("coordinates = %q/%q, want quality-sprint/review", got.Workflow, got.Phase)
	}
	if got.Iteration != 2 {
		t.Errorf("Iteration = %d, want 2", got.Iteration)
	}
	if got.Worker != "code-reviewer" {
		t.Errorf("Worker = %q, want code-reviewer", got.Worker)
	}
}

func TestFromEmptyContext(t *testing.T) {
	if _, ok := scope.From(context.Background()); ok {
		t.Error("From: found scope in empty context")
	}
}

func TestRestoreZeroScopeIsNoOp(t *testing.T) {
	ctx := context.Background()
	if got := scope.Restore(ctx, scope.Scope{}); got != ctx {
		t.Error("Restore: zero scope should return the context unchanged")
	}
}

func TestIsZero(t *testing.T) {
	if !(scope.Scope{}).IsZero() {
		t.Error("IsZero: zero scope reported non-zero")
	}
	if (scope.Scope{Worker: "test-generator"}).IsZero() {
		t.Error("IsZero: populated scope reported zero")
	}
}
