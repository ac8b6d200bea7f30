package cron

import (
	"context"
	"time"

	"github.com/xraph/foreman/id"
)

// Store defines the persistence contract for schedule entries.
type Store interface {
	// RegisterSchedule persists a new entry. Registering an existing
	// name returns foreman.ErrDuplicateSchedule.
	RegisterSchedule(ctx context.Context, entry *Entry) error

	// GetSchedule retrieves an entry by ID.
	GetSchedule(ctx context.Context, entryID id.ScheduleID) (*Entry, error)

	// ListSchedules returns all entries.
	ListSchedules(ctx context.Context) ([]*Entry, error)

	// AcquireScheduleLock attempts to acquire a distributed lock for an
	// entry. Returns true if the lock was acquired. The lock expires
	// after ttl.
	AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, instanceID id.InstanceID, ttl time.Duration) (bool, error)

	// ReleaseScheduleLock releases the distributed lock for an entry.
	ReleaseScheduleLock(ctx context.Context, entryID id.ScheduleID, instanceID id.InstanceID) error

	// UpdateScheduleLastRun records when an entry last fired.
	UpdateScheduleLastRun(ctx context.Context, entryID id.ScheduleID, at time.Time) error

	// UpdateSchedule updates an entry's definition fields (Schedule,
	// Target, Payload, Enabled, NextRunAt). Lock and last-run bookkeeping
	// belong to the dedicated methods and are left untouched.
	UpdateSchedule(ctx context.Context, entry *Entry) error

	// DeleteSchedule removes an entry by ID.
	DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error
}
