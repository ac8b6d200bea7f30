// Package cron provides distributed schedules that publish
// ExplicitCommand events with leader election.
//
// Schedule entries are stored alongside runs and fired only by the
// cluster leader. This guarantees at-most-once firing even when
// multiple Foreman instances share one store.
//
// # Entry
//
// An [Entry] represents a recurring dispatch:
//   - Schedule: standard cron expression (e.g., "0 9 * * 1-5" or "@every 30s")
//   - Worker / Workflow: the explicit target to dispatch when fired
//   - Payload: static JSON args passed to every dispatch
//   - Enabled: whether the entry fires
//   - LockedBy / LockedUntil: distributed lock fields (managed internally)
//
// # Registering a Schedule
//
// Use engine.RegisterSchedule to add an entry at startup:
//
//	engine.RegisterSchedule(ctx, eng, &cron.Definition[AuditArgs]{
//	    Name:     "nightly-audit",
//	    Schedule: "0 2 * * *",
//	    Target:   cron.TargetWorkflow("security-audit"),
//	    Args:     AuditArgs{Scope: "full"},
//	})
//
// # Scheduler
//
// The [Scheduler] evaluates due entries on every tick, acquires a
// distributed lock on each entry, publishes the corresponding
// ExplicitCommand event, and updates LastRunAt and NextRunAt. The
// [ext.ScheduleFired] extension hook fires after each publish.
package cron
