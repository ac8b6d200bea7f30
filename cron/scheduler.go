package cron

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/foreman/cluster"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
)

// Emitter emits schedule lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, entryName string, eventID id.EventID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-entry distributed locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// WithLeaderTTL sets the TTL for leader election.
func WithLeaderTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.leaderTTL = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported for use by engine.RegisterSchedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler runs schedule entries on a tick loop. Only the cluster
// leader executes ticks to prevent double-firing.
type Scheduler struct {
	cronStore    Store
	clusterStore cluster.Store
	events       event.Store
	emitter      Emitter
	instanceID   id.InstanceID
	logger       *slog.Logger

	tickInterval time.Duration
	lockTTL      time.Duration
	leaderTTL    time.Duration

	// parsedSchedules caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	cronStore Store,
	clusterStore cluster.Store,
	events event.Store,
	emitter Emitter,
	instanceID id.InstanceID,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cronStore:    cronStore,
		clusterStore: clusterStore,
		events:       events,
		emitter:      emitter,
		instanceID:   instanceID,
		logger:       logger,
		tickInterval: 1 * time.Second,
		lockTTL:      30 * time.Second,
		leaderTTL:    15 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the leader election and schedule tick goroutines.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(2)
	go s.leaderLoop()
	go s.tickLoop()
	s.logger.Info("schedule scheduler started",
		slog.String("instance_id", s.instanceID.String()),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for goroutines to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("schedule scheduler stopped")
	return nil
}

// leaderLoop continuously attempts to acquire or renew leadership.
func (s *Scheduler) leaderLoop() {
	defer s.wg.Done()

	renewInterval := s.leaderTTL / 2
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	// Try once immediately at start.
	s.tryLeadership()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tryLeadership()
		}
	}
}

func (s *Scheduler) tryLeadership() {
	ctx := context.Background()

	// Try to renew first (cheap if already leader).
	renewed, err := s.clusterStore.RenewLeadership(ctx, s.instanceID, s.leaderTTL)
	if err != nil {
		s.logger.Warn("leadership renew error", slog.String("error", err.Error()))
		return
	}
	if renewed {
		return
	}

	// Not leader yet; try to acquire.
	acquired, err := s.clusterStore.AcquireLeadership(ctx, s.instanceID, s.leaderTTL)
	if err != nil {
		s.logger.Warn("leadership acquire error", slog.String("error", err.Error()))
		return
	}
	if acquired {
		s.logger.Info("acquired schedule leadership", slog.String("instance_id", s.instanceID.String()))
	}
}

// tickLoop fires on each tick interval and processes due entries.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	// Check if we are the leader.
	leader, err := s.clusterStore.GetLeader(ctx)
	if err != nil {
		s.logger.Warn("get leader error", slog.String("error", err.Error()))
		return
	}
	if leader == nil || leader.ID.String() != s.instanceID.String() {
		return // Not the leader; skip.
	}

	// List all schedule entries.
	entries, err := s.cronStore.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("list schedules error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		s.fireEntry(ctx, entry, now)
	}
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	// Acquire per-entry lock.
	acquired, err := s.cronStore.AcquireScheduleLock(ctx, entry.ID, s.instanceID, s.lockTTL)
	if err != nil {
		s.logger.Error("acquire schedule lock error",
			slog.String("schedule_id", entry.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another instance got it.
	}

	// Publish the explicit command.
	evt := event.NewExplicitCommand(event.ExplicitCommandPayload{
		Worker:   entry.Worker,
		Workflow: entry.Workflow,
		Args:     decodeArgs(entry.Payload),
	}, "schedule:"+entry.Name)
	if pubErr := s.events.PublishEvent(ctx, evt); pubErr != nil {
		s.logger.Error("schedule publish error",
			slog.String("schedule_name", entry.Name),
			slog.String("error", pubErr.Error()),
		)
		if relErr := s.cronStore.ReleaseScheduleLock(ctx, entry.ID, s.instanceID); relErr != nil {
			s.logger.Error("release schedule lock error",
				slog.String("schedule_id", entry.ID.String()),
				slog.String("error", relErr.Error()),
			)
		}
		return
	}

	// Update LastRunAt.
	if updateErr := s.cronStore.UpdateScheduleLastRun(ctx, entry.ID, now); updateErr != nil {
		s.logger.Error("update schedule last run error",
			slog.String("schedule_id", entry.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}

	// Compute and persist NextRunAt.
	sched, parseErr := s.getOrParseSchedule(entry.Schedule)
	if parseErr != nil {
		s.logger.Error("parse schedule expression error",
			slog.String("schedule_name", entry.Name),
			slog.String("schedule", entry.Schedule),
			slog.String("error", parseErr.Error()),
		)
	} else {
		next := sched.Next(now)
		entry.NextRunAt = &next
		if updateErr := s.cronStore.UpdateSchedule(ctx, entry); updateErr != nil {
			s.logger.Error("update schedule next run error",
				slog.String("schedule_id", entry.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
	}

	// Release lock.
	if relErr := s.cronStore.ReleaseScheduleLock(ctx, entry.ID, s.instanceID); relErr != nil {
		s.logger.Error("release schedule lock error",
			slog.String("schedule_id", entry.ID.String()),
			slog.String("error", relErr.Error()),
		)
	}

	// Emit hook.
	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, entry.Name, evt.ID)
	}

	s.logger.Info("schedule fired",
		slog.String("schedule_name", entry.Name),
		slog.String("worker", entry.Worker),
		slog.String("workflow", entry.Workflow),
		slog.String("event_id", evt.ID.String()),
	)
}

// decodeArgs converts the stored payload into command args. A payload
// that is not a JSON object rides along under "payload".
func decodeArgs(payload []byte) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(payload, &args); err != nil {
		return map[string]any{"payload": string(payload)}
	}
	return args
}

// getOrParseSchedule caches parsed cron expressions.
func (s *Scheduler) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
