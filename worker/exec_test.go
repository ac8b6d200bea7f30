package worker_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
)

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec tests use sh")
	}
}

func TestExecInvokerSuccess(t *testing.T) {
	requireSh(t)

	inv := &worker.Invocation{
		ID:       id.NewInvocationID(),
		RunID:    id.NewRunID(),
		Worker:   "echo-worker",
		Workflow: "adhoc",
		Phase:    "triggered",
	}
	e := worker.NewExecInvoker([]string{"sh", "-c", `cat >/dev/null; echo '{"status":"success","values":{"criticalCount":0}}'`})

	out, err := e.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Status != worker.StatusSuccess {
		t.Errorf("Status = %q, want %q", out.Status, worker.StatusSuccess)
	}
	if out.Values["criticalCount"] != 0 {
		t.Errorf("criticalCount = %v, want 0", out.Values["criticalCount"])
	}
}

func TestExecInvokerStructuredFailure(t *testing.T) {
	requireSh(t)

	inv := &worker.Invocation{ID: id.NewInvocationID(), Worker: "fail-worker"}
	// Non-zero exit with a parseable outcome: the outcome wins.
	e := worker.NewExecInvoker([]string{"sh", "-c", `cat >/dev/null; echo '{"status":"failure","error":"bad input"}'; exit 3`})

	out, err := e.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Status != worker.StatusFailure {
		t.Errorf("Status = %q, want %q", out.Status, worker.StatusFailure)
	}
	if out.Error != "bad input" {
		t.Errorf("Error = %q, want %q", out.Error, "bad input")
	}
}

func TestExecInvokerCrash(t *testing.T) {
	requireSh(t)

	inv := &worker.Invocation{ID: id.NewInvocationID(), Worker: "crash-worker"}
	e := worker.NewExecInvoker([]string{"sh", "-c", `echo "panic" >&2; exit 1`})

	_, err := e.Invoke(context.Background(), inv)
	if err == nil {
		t.Fatal("expected error for crashing worker")
	}
}

func TestExecInvokerGarbageOutput(t *testing.T) {
	requireSh(t)

	inv := &worker.Invocation{ID: id.NewInvocationID(), Worker: "chatty-worker"}
	e := worker.NewExecInvoker([]string{"sh", "-c", `cat >/dev/null; echo "not json"`})

	_, err := e.Invoke(context.Background(), inv)
	if err == nil {
		t.Fatal("expected error for unparseable outcome")
	}
}

func TestExecInvokerDeadline(t *testing.T) {
	requireSh(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	inv := &worker.Invocation{ID: id.NewInvocationID(), Worker: "slow-worker"}
	e := worker.NewExecInvoker([]string{"sh", "-c", `sleep 5`})

	_, err := e.Invoke(ctx, inv)
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if ctx.Err() == nil {
		t.Error("context should be expired")
	}
}
