package redis

// Redis key naming conventions for foreman data.
// All keys are prefixed with "foreman:" to avoid collisions.

const keyPrefix = "foreman:"

// ── Run keys ──

// runKey returns the key for a run entity: foreman:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runIDsKey is the Set tracking all run IDs for enumeration.
const runIDsKey = keyPrefix + "run_ids"

// ── Invocation keys ──

// invocationKey returns the key for an invocation entity: foreman:inv:{id}
func invocationKey(id string) string { return keyPrefix + "inv:" + id }

// runInvocationsKey returns the List tracking a run's invocation IDs in
// append order: foreman:run_invs:{runID}
func runInvocationsKey(runID string) string { return keyPrefix + "run_invs:" + runID }

// ── Context bus keys ──

// busKey returns the Hash holding a run's context entries, one field per
// bus key: foreman:ctx:{runID}
func busKey(runID string) string { return keyPrefix + "ctx:" + runID }

// busSeqKey returns the counter issuing sequence numbers for a run's
// entries: foreman:ctx_seq:{runID}
func busSeqKey(runID string) string { return keyPrefix + "ctx_seq:" + runID }

// ── Event keys ──

// eventKey returns the key for an event entity: foreman:event:{id}
func eventKey(id string) string { return keyPrefix + "event:" + id }

// eventIDsKey is the Set tracking all event IDs for enumeration.
const eventIDsKey = keyPrefix + "event_ids"

// eventPendingKey is the Sorted Set of unclaimed event IDs scored by
// publish time. ZPOPMIN makes claiming atomic.
const eventPendingKey = keyPrefix + "event_pending"

// ── Schedule keys ──

// scheduleKey returns the key for a schedule entity: foreman:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "schedule_ids"

// scheduleNamesKey maps schedule names to IDs for duplicate detection.
const scheduleNamesKey = keyPrefix + "schedule_names"

// scheduleLockKey returns the distributed lock key for a schedule entry:
// foreman:schedule_lock:{id}
func scheduleLockKey(id string) string { return keyPrefix + "schedule_lock:" + id }

// ── DLQ keys ──

// dlqKey returns the key for a DLQ entry entity: foreman:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Set tracking all DLQ entry IDs for enumeration.
const dlqIDsKey = keyPrefix + "dlq_ids"

// ── Cluster keys ──

// instanceKey returns the key for an instance entity: foreman:instance:{id}
func instanceKey(id string) string { return keyPrefix + "instance:" + id }

// instanceIDsKey is the Set tracking all instance IDs for enumeration.
const instanceIDsKey = keyPrefix + "instance_ids"

// leaderKey stores the current leader instance ID.
const leaderKey = keyPrefix + "leader"
