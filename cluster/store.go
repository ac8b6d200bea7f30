package cluster

import (
	"context"
	"time"

	"github.com/xraph/foreman/id"
)

// Store defines the persistence contract for instance coordination.
type Store interface {
	// RegisterInstance adds a new instance to the cluster registry.
	RegisterInstance(ctx context.Context, inst *Instance) error

	// DeregisterInstance removes an instance from the cluster registry.
	DeregisterInstance(ctx context.Context, instanceID id.InstanceID) error

	// HeartbeatInstance updates the last-seen timestamp for an instance,
	// indicating it is still alive.
	HeartbeatInstance(ctx context.Context, instanceID id.InstanceID) error

	// ListInstances returns all registered instances.
	ListInstances(ctx context.Context) ([]*Instance, error)

	// ReapDeadInstances returns instances whose last-seen timestamp is
	// older than the given threshold, indicating they may have crashed.
	ReapDeadInstances(ctx context.Context, threshold time.Duration) ([]*Instance, error)

	// AcquireLeadership attempts to become the cluster leader.
	// Returns true if this instance is now leader. The leadership
	// expires after ttl if not renewed.
	AcquireLeadership(ctx context.Context, instanceID id.InstanceID, ttl time.Duration) (bool, error)

	// RenewLeadership extends the leader's hold. Must be called
	// before the TTL expires.
	RenewLeadership(ctx context.Context, instanceID id.InstanceID, ttl time.Duration) (bool, error)

	// GetLeader returns the current cluster leader, or nil if there
	// is no leader.
	GetLeader(ctx context.Context) (*Instance, error)
}
