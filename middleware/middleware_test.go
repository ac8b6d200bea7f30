package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/middleware"
	"github.com/xraph/foreman/scope"
	"github.com/xraph/foreman/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInvocation() *worker.Invocation {
	return &worker.Invocation{
		ID:        id.NewInvocationID(),
		RunID:     id.NewRunID(),
		Workflow:  "quality-sprint",
		Phase:     "review",
		Iteration: 1,
		Worker:    "code-reviewer",
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, inv *worker.Invocation, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")

		return err
	}
	mw2 := func(ctx context.Context, inv *worker.Invocation, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")

		return err
	}
	handler := func(ctx context.Context) error {
		order = append(order, "handler")

		return nil
	}

	invoke := middleware.Chain(handler, mw1, mw2)
	if err := invoke(context.Background(), testInvocation()); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	want := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	invoke := middleware.Chain(func(ctx context.Context) error {
		called = true

		return nil
	})

	if err := invoke(context.Background(), testInvocation()); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !called {
		t.Error("handler not called through empty chain")
	}
}

func TestChain_Aborts(t *testing.T) {
	abort := errors.New("denied")
	mw := func(ctx context.Context, inv *worker.Invocation, next middleware.Handler) error {
		return abort
	}

	called := false
	invoke := middleware.Chain(func(ctx context.Context) error {
		called = true

		return nil
	}, mw)

	if err := invoke(context.Background(), testInvocation()); !errors.Is(err, abort) {
		t.Fatalf("invoke = %v, want %v", err, abort)
	}
	if called {
		t.Error("handler called after middleware aborted")
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	invoke := middleware.Chain(func(ctx context.Context) error {
		panic("boom")
	}, middleware.RecoverWithLogger(discardLogger()))

	err := invoke(context.Background(), testInvocation())
	if err == nil {
		t.Fatal("invoke: expected error from panic")
	}
	if got := err.Error(); got != "panic in worker code-reviewer: boom" {
		t.Errorf("error = %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	invoke := middleware.Chain(func(ctx context.Context) error {
		return nil
	}, middleware.RecoverWithLogger(discardLogger()))

	if err := invoke(context.Background(), testInvocation()); err != nil {
		t.Fatalf("invoke: %v", err)
	}
}

func TestLogging_Error(t *testing.T) {
	want := errors.New("lint crashed")
	invoke := middleware.Chain(func(ctx context.Context) error {
		return want
	}, middleware.Logging(discardLogger()))

	if err := invoke(context.Background(), testInvocation()); !errors.Is(err, want) {
		t.Fatalf("invoke = %v, want %v", err, want)
	}
}

func TestScope_RestoresFromInvocation(t *testing.T) {
	inv := testInvocation()

	var got scope.Scope
	invoke := middleware.Chain(func(ctx context.Context) error {
		s, ok := scope.From(ctx)
		if !ok {
			t.Fatal("scope not restored")
		}
		got = s

		return nil
	}, middleware.Scope())

	if err := invoke(context.Background(), inv); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if got.RunID != inv.RunID {
		t.Errorf("RunID = %v, want %v", got.RunID, inv.RunID)
	}
	if got.Worker != "code-reviewer" || got.Phase != "review" || got.Iteration != 1 {
		t.Errorf("scope = %+v", got)
	}
}

func TestTimeout_Exceeded(t *testing.T) {
	inv := testInvocation()
	inv.Timeout = 10 * time.Millisecond

	invoke := middleware.Chain(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}, middleware.TimeoutWithLogger(discardLogger()))

	if err := invoke(context.Background(), inv); !errors.Is(err, worker.ErrTimeout) {
		t.Fatalf("invoke = %v, want worker.ErrTimeout", err)
	}
}

func TestTimeout_ZeroUnbounded(t *testing.T) {
	inv := testInvocation()
	inv.Timeout = 0

	invoke := middleware.Chain(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("deadline set for zero timeout")
		}

		return nil
	}, middleware.TimeoutWithLogger(discardLogger()))

	if err := invoke(context.Background(), inv); err != nil {
		t.Fatalf("invoke: %v", err)
	}
}
