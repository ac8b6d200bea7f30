package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/cron"
	"github.com/xraph/foreman/id"
)

// RegisterSchedule stores the entry as a Hash and indexes its ID. Names
// are reserved through HSETNX on the name index, which makes duplicate
// detection atomic.
func (s *Store) RegisterSchedule(ctx context.Context, entry *cron.Entry) error {
	eID := entry.ID.String()

	reserved, err := s.client.HSetNX(ctx, scheduleNamesKey, entry.Name, eID).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: register schedule name: %w", err)
	}
	if !reserved {
		return foreman.ErrDuplicateSchedule
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, scheduleKey(eID), scheduleToMap(entry))
	pipe.SAdd(ctx, scheduleIDsKey, eID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		// Release the name so a retry is not wedged.
		if dErr := s.client.HDel(ctx, scheduleNamesKey, entry.Name).Err(); dErr != nil {
			s.logger.Warn("failed to release schedule name", "error", dErr)
		}
		return fmt.Errorf("foreman/redis: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*cron.Entry, error) {
	vals, err := s.client.HGetAll(ctx, scheduleKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: get schedule: %w", err)
	}
	if len(vals) == 0 {
		return nil, foreman.ErrScheduleNotFound
	}
	return mapToSchedule(vals)
}

// ListSchedules returns all schedule entries, oldest first.
func (s *Store) ListSchedules(ctx context.Context) ([]*cron.Entry, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: list schedules smembers: %w", err)
	}

	entries := make([]*cron.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, scheduleKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		e, convErr := mapToSchedule(vals)
		if convErr != nil {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// AcquireScheduleLock attempts to acquire the distributed lock for an
// entry using SET NX with a TTL. Re-acquiring a lock this instance
// already holds extends the TTL.
func (s *Store) AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, instanceID id.InstanceID, ttl time.Duration) (bool, error) {
	eID := entryID.String()
	iID := instanceID.String()
	entryKey := scheduleKey(eID)
	lockKey := scheduleLockKey(eID)

	exists, err := s.client.Exists(ctx, entryKey).Result()
	if err != nil {
		return false, fmt.Errorf("foreman/redis: acquire schedule lock exists: %w", err)
	}
	if exists == 0 {
		return false, foreman.ErrScheduleNotFound
	}

	ok, err := s.client.SetNX(ctx, lockKey, iID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("foreman/redis: acquire schedule lock setnx: %w", err)
	}
	if ok {
		s.mirrorScheduleLock(ctx, entryKey, iID, ttl)
		return true, nil
	}

	// Check if we already hold it.
	current, err := s.client.Get(ctx, lockKey).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("foreman/redis: acquire schedule lock get: %w", err)
	}
	if current == iID {
		// Re-acquire: extend TTL.
		if eErr := s.client.Expire(ctx, lockKey, ttl).Err(); eErr != nil {
			s.logger.Warn("failed to extend schedule lock", "error", eErr)
		}
		s.mirrorScheduleLock(ctx, entryKey, iID, ttl)
		return true, nil
	}

	return false, nil
}

// ReleaseScheduleLock releases the lock if this instance holds it.
// Releasing a lock held by another instance is a no-op.
func (s *Store) ReleaseScheduleLock(ctx context.Context, entryID id.ScheduleID, instanceID id.InstanceID) error {
	eID := entryID.String()
	entryKey := scheduleKey(eID)
	lockKey := scheduleLockKey(eID)

	exists, err := s.client.Exists(ctx, entryKey).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: release schedule lock exists: %w", err)
	}
	if exists == 0 {
		return foreman.ErrScheduleNotFound
	}

	current, err := s.client.Get(ctx, lockKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil // nothing locked
		}
		return fmt.Errorf("foreman/redis: release schedule lock get: %w", err)
	}
	if current != instanceID.String() {
		return nil // not holding the lock; no-op
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, lockKey)
	pipe.HDel(ctx, entryKey, "locked_by", "locked_until")
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: release schedule lock: %w", err)
	}
	return nil
}

// UpdateScheduleLastRun records when a schedule entry last fired.
func (s *Store) UpdateScheduleLastRun(ctx context.Context, entryID id.ScheduleID, at time.Time) error {
	key := scheduleKey(entryID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: update schedule last run exists: %w", err)
	}
	if exists == 0 {
		return foreman.ErrScheduleNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"last_run_at", at.Format(time.RFC3339Nano),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: update schedule last run: %w", err)
	}
	return nil
}

// UpdateSchedule updates the entry's definition fields. Only those fields
// are written, so lock and last-run bookkeeping stay untouched.
func (s *Store) UpdateSchedule(ctx context.Context, entry *cron.Entry) error {
	key := scheduleKey(entry.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: update schedule exists: %w", err)
	}
	if exists == 0 {
		return foreman.ErrScheduleNotFound
	}

	fields := map[string]interface{}{
		"name":       entry.Name,
		"schedule":   entry.Schedule,
		"worker":     entry.Worker,
		"workflow":   entry.Workflow,
		"payload":    string(entry.Payload),
		"enabled":    boolToStr(entry.Enabled),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if entry.NextRunAt != nil {
		fields["next_run_at"] = entry.NextRunAt.Format(time.RFC3339Nano)
	}

	_, err = s.client.HSet(ctx, key, fields).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	eID := entryID.String()
	key := scheduleKey(eID)

	name, err := s.client.HGet(ctx, key, "name").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return foreman.ErrScheduleNotFound
		}
		return fmt.Errorf("foreman/redis: delete schedule get name: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, scheduleLockKey(eID))
	pipe.SRem(ctx, scheduleIDsKey, eID)
	pipe.HDel(ctx, scheduleNamesKey, name)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: delete schedule: %w", err)
	}
	return nil
}

// ── helpers ──

// mirrorScheduleLock copies lock state into the entry hash so listings
// show who holds it. The lock key itself is authoritative.
func (s *Store) mirrorScheduleLock(ctx context.Context, entryKey, instanceID string, ttl time.Duration) {
	until := time.Now().UTC().Add(ttl)
	if _, err := s.client.HSet(ctx, entryKey,
		"locked_by", instanceID,
		"locked_until", until.Format(time.RFC3339Nano),
	).Result(); err != nil {
		s.logger.Warn("failed to update schedule lock fields", "error", err)
	}
}

func scheduleToMap(e *cron.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":         e.ID.String(),
		"name":       e.Name,
		"schedule":   e.Schedule,
		"worker":     e.Worker,
		"workflow":   e.Workflow,
		"payload":    string(e.Payload),
		"locked_by":  e.LockedBy,
		"enabled":    boolToStr(e.Enabled),
		"created_at": e.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": e.UpdatedAt.Format(time.RFC3339Nano),
	}
	if e.LastRunAt != nil {
		m["last_run_at"] = e.LastRunAt.Format(time.RFC3339Nano)
	}
	if e.NextRunAt != nil {
		m["next_run_at"] = e.NextRunAt.Format(time.RFC3339Nano)
	}
	if e.LockedUntil != nil {
		m["locked_until"] = e.LockedUntil.Format(time.RFC3339Nano)
	}
	return m
}

func mapToSchedule(m map[string]string) (*cron.Entry, error) {
	eID, err := id.ParseScheduleID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: parse schedule id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &cron.Entry{
		Entity: foreman.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       eID,
		Name:     m["name"],
		Schedule: m["schedule"],
		Worker:   m["worker"],
		Workflow: m["workflow"],
		Payload:  []byte(m["payload"]),
		LockedBy: m["locked_by"],
		Enabled:  m["enabled"] == "1",
	}

	if v := m["last_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.LastRunAt = &t
	}
	if v := m["next_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.NextRunAt = &t
	}
	if v := m["locked_until"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.LockedUntil = &t
	}
	return e, nil
}
