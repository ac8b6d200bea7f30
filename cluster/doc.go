// Package cluster provides engine instance coordination: registration,
// heartbeats, and leader election.
//
// When running multiple Foreman instances against one shared store, the
// cluster package coordinates which instance is the leader and which are
// followers. Every instance claims events and executes runs; only
// leadership-gated duties (firing schedule entries) are exclusive.
//
// # Instance Entity
//
// Each running Foreman engine registers itself as an [Instance] with:
//   - a unique [id.InstanceID]
//   - its hostname
//   - the capability tags its registered workers advertise
//   - its concurrency limit
//   - a state: [InstanceActive], [InstanceDraining], or [InstanceDead]
//
// Instances send periodic heartbeats. [Store.ReapDeadInstances] surfaces
// instances whose heartbeat is older than the configured threshold, so
// operators and tooling can spot crashed engines.
//
// # Leader Election
//
// One instance at a time holds leadership, acquired through
// [Store.AcquireLeadership] with a TTL and renewed before expiry. The
// schedule scheduler checks leadership on every tick and fires entries
// only while it holds the lease.
package cluster
