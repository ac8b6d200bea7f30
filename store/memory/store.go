package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/bus"
	"github.com/xraph/foreman/cluster"
	"github.com/xraph/foreman/cron"
	"github.com/xraph/foreman/dlq"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ workflow.Store = (*Store)(nil)
	_ worker.Store   = (*Store)(nil)
	_ bus.Store      = (*Store)(nil)
	_ event.Store    = (*Store)(nil)
	_ cron.Store     = (*Store)(nil)
	_ dlq.Store      = (*Store)(nil)
	_ cluster.Store  = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing, development, and
// single-process deployments that don't need persistence across restarts.
type Store struct {
	mu sync.RWMutex

	runs        map[string]*workflow.Run
	invocations map[string]*worker.Invocation
	runInvs     map[string][]string // runID → invocation IDs in append order
	entries     map[string][]*bus.Entry
	events      map[string]*event.Event
	crons       map[string]*cron.Entry
	dlqs        map[string]*dlq.Entry
	instances   map[string]*cluster.Instance

	// leader tracks the current leader instance ID string.
	leader      string
	leaderUntil time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:        make(map[string]*workflow.Run),
		invocations: make(map[string]*worker.Invocation),
		runInvs:     make(map[string][]string),
		entries:     make(map[string][]*bus.Entry),
		events:      make(map[string]*event.Event),
		crons:       make(map[string]*cron.Entry),
		dlqs:        make(map[string]*dlq.Entry),
		instances:   make(map[string]*cluster.Instance),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow Run Store
// ──────────────────────────────────────────────────

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, r *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.runs[key]; exists {
		return foreman.ErrRunAlreadyExists
	}
	m.runs[key] = r.Clone()
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, foreman.ErrRunNotFound
	}
	return r.Clone(), nil
}

// UpdateRun replaces the stored run wholesale.
func (m *Store) UpdateRun(_ context.Context, r *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, ok := m.runs[key]; !ok {
		return foreman.ErrRunNotFound
	}
	r.Touch(time.Now().UTC())
	m.runs[key] = r.Clone()
	return nil
}

// ListRuns returns workflow runs matching the given options, newest first.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if !opts.Match(r) {
			continue
		}
		result = append(result, r.Clone())
	}

	// Newest first; ID breaks CreatedAt ties (TypeIDs are K-sortable).
	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.After(result[k].CreatedAt)
		}
		return result[i].ID.String() > result[k].ID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountRuns returns the number of runs matching the filter portion of opts.
func (m *Store) CountRuns(_ context.Context, opts workflow.ListOpts) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.runs {
		if opts.Match(r) {
			count++
		}
	}
	return count, nil
}

// DeleteRun removes a run by ID.
func (m *Store) DeleteRun(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runID.String()
	if _, ok := m.runs[key]; !ok {
		return foreman.ErrRunNotFound
	}
	delete(m.runs, key)
	return nil
}

// ──────────────────────────────────────────────────
// Invocation Store
// ──────────────────────────────────────────────────

// AppendInvocation persists a finished (or skipped) invocation record.
func (m *Store) AppendInvocation(_ context.Context, inv *worker.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := inv.ID.String()
	if _, exists := m.invocations[key]; !exists {
		runKey := inv.RunID.String()
		m.runInvs[runKey] = append(m.runInvs[runKey], key)
	}
	cp := *inv
	m.invocations[key] = &cp
	return nil
}

// GetInvocation retrieves an invocation by ID.
func (m *Store) GetInvocation(_ context.Context, invID id.InvocationID) (*worker.Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invocations[invID.String()]
	if !ok {
		return nil, foreman.ErrInvocationNotFound
	}
	cp := *inv
	return &cp, nil
}

// ListInvocations returns every invocation of a run in append order.
func (m *Store) ListInvocations(_ context.Context, runID id.RunID, opts worker.ListOpts) ([]*worker.Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.runInvs[runID.String()]
	result := make([]*worker.Invocation, 0, len(keys))
	for _, key := range keys {
		if inv, ok := m.invocations[key]; ok {
			cp := *inv
			result = append(result, &cp)
		}
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountInvocations returns the number of invocations recorded for a run.
func (m *Store) CountInvocations(_ context.Context, runID id.RunID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.runInvs[runID.String()])), nil
}

// ──────────────────────────────────────────────────
// Context Bus Store
// ──────────────────────────────────────────────────

// PutEntry appends a context entry with insert-only semantics. The
// collision check and the insert happen under one lock; Seq is assigned
// monotonically within the run.
func (m *Store) PutEntry(_ context.Context, runID id.RunID, entry *bus.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runID.String()
	for _, e := range m.entries[key] {
		if e.Key == entry.Key {
			return bus.ErrKeyCollision
		}
	}

	entry.Seq = int64(len(m.entries[key]) + 1)
	cp := *entry
	m.entries[key] = append(m.entries[key], &cp)
	return nil
}

// GetEntry retrieves the entry at the exact key.
func (m *Store) GetEntry(_ context.Context, runID id.RunID, key bus.Key) (*bus.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[runID.String()] {
		if e.Key == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, foreman.ErrEntryNotFound
}

// LatestField returns the entry with the highest Seq naming the given
// field, or nil when the field was never written.
func (m *Store) LatestField(_ context.Context, runID id.RunID, field string) (*bus.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[runID.String()]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Key.Field == field {
			cp := *list[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// ListEntries returns all entries of the run in Seq order.
func (m *Store) ListEntries(_ context.Context, runID id.RunID) ([]*bus.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[runID.String()]
	result := make([]*bus.Entry, len(list))
	for i, e := range list {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

// DeleteEntries removes every entry of the run.
func (m *Store) DeleteEntries(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, runID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// PublishEvent persists a new event.
func (m *Store) PublishEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *evt
	m.events[evt.ID.String()] = &cp
	return nil
}

// GetEvent retrieves an event by ID.
func (m *Store) GetEvent(_ context.Context, eventID id.EventID) (*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	evt, ok := m.events[eventID.String()]
	if !ok {
		return nil, foreman.ErrEventNotFound
	}
	cp := *evt
	return &cp, nil
}

// ClaimEvent atomically claims the oldest unclaimed, unacked event.
func (m *Store) ClaimEvent(_ context.Context) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *event.Event
	for _, evt := range m.events {
		if evt.Claimed || evt.Acked {
			continue
		}
		if oldest == nil ||
			evt.CreatedAt.Before(oldest.CreatedAt) ||
			(evt.CreatedAt.Equal(oldest.CreatedAt) && evt.ID.String() < oldest.ID.String()) {
			oldest = evt
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Claimed = true
	cp := *oldest
	return &cp, nil
}

// AckEvent acknowledges an event, marking it as consumed.
func (m *Store) AckEvent(_ context.Context, eventID id.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	evt, ok := m.events[eventID.String()]
	if !ok {
		return foreman.ErrEventNotFound
	}
	evt.Acked = true
	return nil
}

// PruneEvents deletes acked events older than the given threshold.
func (m *Store) PruneEvents(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	count := 0
	for key, evt := range m.events {
		if evt.Acked && evt.CreatedAt.Before(cutoff) {
			delete(m.events, key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// RegisterSchedule persists a new schedule entry. Returns an error if the
// name already exists.
func (m *Store) RegisterSchedule(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check for duplicate name.
	for _, e := range m.crons {
		if e.Name == entry.Name {
			return foreman.ErrDuplicateSchedule
		}
	}

	cp := *entry
	m.crons[entry.ID.String()] = &cp
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (m *Store) GetSchedule(_ context.Context, entryID id.ScheduleID) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return nil, foreman.ErrScheduleNotFound
	}
	cp := *e
	return &cp, nil
}

// ListSchedules returns all schedule entries.
func (m *Store) ListSchedules(_ context.Context) ([]*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cron.Entry, 0, len(m.crons))
	for _, e := range m.crons {
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// AcquireScheduleLock attempts to acquire a distributed lock for an entry.
func (m *Store) AcquireScheduleLock(_ context.Context, entryID id.ScheduleID, instanceID id.InstanceID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return false, foreman.ErrScheduleNotFound
	}

	now := time.Now().UTC()

	// If already locked by someone else and the lock hasn't expired, fail.
	if e.LockedBy != "" && e.LockedUntil != nil && e.LockedUntil.After(now) {
		if e.LockedBy != instanceID.String() {
			return false, nil
		}
	}

	e.LockedBy = instanceID.String()
	until := now.Add(ttl)
	e.LockedUntil = &until
	return true, nil
}

// ReleaseScheduleLock releases the distributed lock for an entry.
func (m *Store) ReleaseScheduleLock(_ context.Context, entryID id.ScheduleID, instanceID id.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return foreman.ErrScheduleNotFound
	}

	if e.LockedBy != instanceID.String() {
		return nil // not holding the lock; no-op
	}

	e.LockedBy = ""
	e.LockedUntil = nil
	return nil
}

// UpdateScheduleLastRun records when a schedule entry last fired.
func (m *Store) UpdateScheduleLastRun(_ context.Context, entryID id.ScheduleID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return foreman.ErrScheduleNotFound
	}
	e.LastRunAt = &at
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateSchedule updates an entry's definition fields. Lock and last-run
// bookkeeping stay with the stored entry.
func (m *Store) UpdateSchedule(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.ID.String()
	stored, ok := m.crons[key]
	if !ok {
		return foreman.ErrScheduleNotFound
	}

	cp := *entry
	cp.LockedBy = stored.LockedBy
	cp.LockedUntil = stored.LockedUntil
	cp.LastRunAt = stored.LastRunAt
	cp.UpdatedAt = time.Now().UTC()
	m.crons[key] = &cp
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (m *Store) DeleteSchedule(_ context.Context, entryID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.crons[key]; !ok {
		return foreman.ErrScheduleNotFound
	}
	delete(m.crons, key)
	return nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed invocation entry to the dead letter queue.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns DLQ entries matching the given options, newest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Worker != "" && e.Worker != opts.Worker {
			continue
		}
		if opts.Workflow != "" && e.Workflow != opts.Workflow {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		if !result[i].FailedAt.Equal(result[k].FailedAt) {
			return result[i].FailedAt.After(result[k].FailedAt)
		}
		return result[i].ID.String() > result[k].ID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DeadLetterID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, foreman.ErrDeadLetterNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.DeadLetterID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return foreman.ErrDeadLetterNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Cluster Store
// ──────────────────────────────────────────────────

// RegisterInstance adds a new instance to the cluster registry.
func (m *Store) RegisterInstance(_ context.Context, inst *cluster.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *inst
	m.instances[inst.ID.String()] = &cp
	return nil
}

// DeregisterInstance removes an instance from the cluster registry.
func (m *Store) DeregisterInstance(_ context.Context, instanceID id.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := instanceID.String()
	if _, ok := m.instances[key]; !ok {
		return foreman.ErrInstanceNotFound
	}
	delete(m.instances, key)
	return nil
}

// HeartbeatInstance updates the last-seen timestamp for an instance.
func (m *Store) HeartbeatInstance(_ context.Context, instanceID id.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[instanceID.String()]
	if !ok {
		return foreman.ErrInstanceNotFound
	}
	inst.LastSeen = time.Now().UTC()
	return nil
}

// ListInstances returns all registered instances.
func (m *Store) ListInstances(_ context.Context) ([]*cluster.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		cp := *inst
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// ReapDeadInstances returns instances whose last-seen timestamp is older
// than the given threshold.
func (m *Store) ReapDeadInstances(_ context.Context, threshold time.Duration) ([]*cluster.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var dead []*cluster.Instance
	for _, inst := range m.instances {
		if inst.LastSeen.Before(cutoff) {
			cp := *inst
			dead = append(dead, &cp)
		}
	}
	return dead, nil
}

// AcquireLeadership attempts to become the cluster leader.
func (m *Store) AcquireLeadership(_ context.Context, instanceID id.InstanceID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := instanceID.String()

	// If there's already a leader whose TTL hasn't expired and it's not us, fail.
	if m.leader != "" && m.leaderUntil.After(now) && m.leader != key {
		return false, nil
	}

	// Acquire (or re-acquire) leadership.
	m.leader = key
	m.leaderUntil = now.Add(ttl)

	// Update instance record.
	if inst, ok := m.instances[key]; ok {
		inst.IsLeader = true
		until := m.leaderUntil
		inst.LeaderUntil = &until
	}

	return true, nil
}

// RenewLeadership extends the leader's hold.
func (m *Store) RenewLeadership(_ context.Context, instanceID id.InstanceID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := instanceID.String()
	if m.leader != key {
		return false, nil
	}

	m.leaderUntil = time.Now().UTC().Add(ttl)

	if inst, ok := m.instances[key]; ok {
		until := m.leaderUntil
		inst.LeaderUntil = &until
	}

	return true, nil
}

// GetLeader returns the current cluster leader, or nil if there is no leader.
func (m *Store) GetLeader(_ context.Context) (*cluster.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.leader == "" || m.leaderUntil.Before(time.Now().UTC()) {
		return nil, nil
	}

	inst, ok := m.instances[m.leader]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}
