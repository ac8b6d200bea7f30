package cron_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/cluster"
	"github.com/xraph/foreman/cron"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/store/memory"
)

// stubEmitter records EmitScheduleFired calls.
type stubEmitter struct {
	mu    sync.Mutex
	calls []scheduleFiredCall
}

type scheduleFiredCall struct {
	EntryName string
	EventID   id.EventID
}

func (e *stubEmitter) EmitScheduleFired(_ context.Context, entryName string, eventID id.EventID) {
	e.mu.Lock()
	e.calls = append(e.calls, scheduleFiredCall{EntryName: entryName, EventID: eventID})
	e.mu.Unlock()
}

func (e *stubEmitter) getCalls() []scheduleFiredCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]scheduleFiredCall, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *stubEmitter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func registerDueEntry(t *testing.T, s *memory.Store, name string, target cron.Target) *cron.Entry {
	t.Helper()

	now := time.Now().UTC()
	past := now.Add(-1 * time.Second)
	entry := &cron.Entry{
		Entity:    foreman.Entity{CreatedAt: now, UpdatedAt: now},
		ID:        id.NewScheduleID(),
		Name:      name,
		Schedule:  "@every 1s",
		Worker:    target.Worker(),
		Workflow:  target.Workflow(),
		Payload:   []byte(`{}`),
		NextRunAt: &past,
		Enabled:   true,
	}

	if err := s.RegisterSchedule(context.Background(), entry); err != nil {
		t.Fatalf("RegisterSchedule: %v", err)
	}
	return entry
}

func registerInstance(t *testing.T, s *memory.Store, instanceID id.InstanceID) {
	t.Helper()
	inst := &cluster.Instance{
		ID:        instanceID,
		Hostname:  "test-host",
		State:     cluster.InstanceActive,
		LastSeen:  time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.RegisterInstance(context.Background(), inst); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}
}

// newTestScheduler creates a working scheduler with leadership acquired.
func newTestScheduler(t *testing.T) (
	*cron.Scheduler,
	*memory.Store,
	*stubEmitter,
) {
	t.Helper()

	s := memory.New()
	emitter := &stubEmitter{}
	instanceID := id.NewInstanceID()

	ctx := context.Background()

	registerInstance(t, s, instanceID)
	acquired, err := s.AcquireLeadership(ctx, instanceID, 30*time.Second)
	if err != nil {
		t.Fatalf("AcquireLeadership: %v", err)
	}
	if !acquired {
		t.Fatal("failed to acquire leadership")
	}

	sched := cron.NewScheduler(
		s, s, s, emitter, instanceID, nil,
		cron.WithTickInterval(50*time.Millisecond),
		cron.WithLeaderTTL(10*time.Second),
	)

	return sched, s, emitter
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestScheduler_FiresOnSchedule(t *testing.T) {
	sched, s, emitter := newTestScheduler(t)

	registerDueEntry(t, s, "nightly-audit", cron.TargetWorkflow("security-audit"))

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for at least one fire.
	deadline := time.After(3 * time.Second)
	for emitter.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for schedule to fire")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	calls := emitter.getCalls()
	if len(calls) == 0 {
		t.Fatal("expected at least one EmitScheduleFired call")
	}
	if calls[0].EntryName != "nightly-audit" {
		t.Errorf("emitter entry name = %q, want %q", calls[0].EntryName, "nightly-audit")
	}

	// Verify the published command targets the workflow.
	evt, err := s.GetEvent(context.Background(), calls[0].EventID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if evt.Kind != event.KindExplicitCommand {
		t.Errorf("event Kind = %q, want %q", evt.Kind, event.KindExplicitCommand)
	}
	var p event.ExplicitCommandPayload
	if err := evt.Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Workflow != "security-audit" {
		t.Errorf("payload Workflow = %q, want %q", p.Workflow, "security-audit")
	}
}

func TestScheduler_SkipsDisabled(t *testing.T) {
	sched, s, emitter := newTestScheduler(t)

	entry := registerDueEntry(t, s, "disabled-schedule", cron.TargetWorker("doc-writer"))

	// Disable the entry.
	entry.Enabled = false
	if err := s.UpdateSchedule(context.Background(), entry); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait a bit — should NOT fire.
	time.Sleep(300 * time.Millisecond)

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if emitter.Count() != 0 {
		t.Errorf("expected 0 fires for disabled entry, got %d", emitter.Count())
	}
}

func TestScheduler_NonLeaderSkips(t *testing.T) {
	s := memory.New()
	emitter := &stubEmitter{}

	nonLeaderID := id.NewInstanceID()
	leaderID := id.NewInstanceID()

	ctx := context.Background()

	// Register both instances, but make leaderID the leader.
	registerInstance(t, s, leaderID)
	registerInstance(t, s, nonLeaderID)
	acquired, err := s.AcquireLeadership(ctx, leaderID, 30*time.Second)
	if err != nil || !acquired {
		t.Fatalf("AcquireLeadership: acquired=%v err=%v", acquired, err)
	}

	// Create scheduler for the non-leader instance.
	sched := cron.NewScheduler(
		s, s, s, emitter, nonLeaderID, nil,
		cron.WithTickInterval(50*time.Millisecond),
		cron.WithLeaderTTL(10*time.Second),
	)

	registerDueEntry(t, s, "leader-only", cron.TargetWorker("test-generator"))

	if startErr := sched.Start(context.Background()); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	// Wait a bit — non-leader should not fire.
	time.Sleep(300 * time.Millisecond)

	if stopErr := sched.Stop(context.Background()); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	if emitter.Count() != 0 {
		t.Errorf("non-leader should not fire schedules, got %d calls", emitter.Count())
	}
}

func TestScheduler_ComputesNextRunAt(t *testing.T) {
	sched, s, emitter := newTestScheduler(t)

	entry := registerDueEntry(t, s, "update-next", cron.TargetWorker("code-reviewer"))
	entryID := entry.ID

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for at least one fire.
	deadline := time.After(3 * time.Second)
	for emitter.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for schedule to fire")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Verify NextRunAt was updated to a future time.
	updated, err := s.GetSchedule(context.Background(), entryID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if updated.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be set")
	}
	// NextRunAt should be in the future (or very recent past due to timing).
	if updated.NextRunAt.Before(time.Now().UTC().Add(-2 * time.Second)) {
		t.Errorf("NextRunAt = %v, expected recent/future time", updated.NextRunAt)
	}

	// Verify LastRunAt was set.
	if updated.LastRunAt == nil {
		t.Error("expected LastRunAt to be set after firing")
	}
}

func TestScheduler_LockPreventsDoubleFire(t *testing.T) {
	s := memory.New()
	emitter := &stubEmitter{}
	instanceID := id.NewInstanceID()

	ctx := context.Background()

	registerInstance(t, s, instanceID)
	acquired, err := s.AcquireLeadership(ctx, instanceID, 30*time.Second)
	if err != nil || !acquired {
		t.Fatalf("AcquireLeadership: acquired=%v err=%v", acquired, err)
	}

	entry := registerDueEntry(t, s, "locked-entry", cron.TargetWorker("refactoring-expert"))

	// Pre-acquire the lock for this entry with a different instance.
	otherInstanceID := id.NewInstanceID()
	locked, lockErr := s.AcquireScheduleLock(ctx, entry.ID, otherInstanceID, 30*time.Second)
	if lockErr != nil {
		t.Fatalf("AcquireScheduleLock: %v", lockErr)
	}
	if !locked {
		t.Fatal("expected to acquire schedule lock")
	}

	sched := cron.NewScheduler(
		s, s, s, emitter, instanceID, nil,
		cron.WithTickInterval(50*time.Millisecond),
		cron.WithLeaderTTL(10*time.Second),
	)

	if startErr := sched.Start(ctx); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	// Wait — scheduler should try but fail to acquire the lock.
	time.Sleep(300 * time.Millisecond)

	if stopErr := sched.Stop(ctx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	if emitter.Count() != 0 {
		t.Errorf("expected 0 fires with pre-locked entry, got %d", emitter.Count())
	}
}

func TestParseSchedule(t *testing.T) {
	// Descriptor format.
	sched, err := cron.ParseSchedule("@every 30s")
	if err != nil {
		t.Fatalf("ParseSchedule(@every 30s): %v", err)
	}
	now := time.Now().UTC()
	next := sched.Next(now)
	if !next.After(now) {
		t.Errorf("Next(%v) = %v, expected future time", now, next)
	}

	// Standard 5-field expression.
	sched2, err := cron.ParseSchedule("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule(*/5 * * * *): %v", err)
	}
	next2 := sched2.Next(now)
	if !next2.After(now) {
		t.Errorf("Next(%v) = %v, expected future time", now, next2)
	}

	// Invalid expression.
	_, err = cron.ParseSchedule("not-a-cron")
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
}
