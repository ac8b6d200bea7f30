package cluster

import (
	"time"

	"github.com/xraph/foreman/id"
)

// InstanceState represents the lifecycle state of an engine instance.
type InstanceState string

const (
	// InstanceActive means the instance is healthy and executing runs.
	InstanceActive InstanceState = "active"
	// InstanceDraining means the instance is finishing in-flight runs
	// but not claiming new events (graceful shutdown).
	InstanceDraining InstanceState = "draining"
	// InstanceDead means the instance has stopped responding and its
	// runs should be reclaimed.
	InstanceDead InstanceState = "dead"
)

// Instance represents one Foreman engine in a shared-store deployment.
type Instance struct {
	ID           id.InstanceID     `json:"id"`
	Hostname     string            `json:"hostname"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Concurrency  int               `json:"concurrency"`
	State        InstanceState     `json:"state"`
	IsLeader     bool              `json:"is_leader"`
	LeaderUntil  *time.Time        `json:"leader_until,omitempty"`
	LastSeen     time.Time         `json:"last_seen"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
