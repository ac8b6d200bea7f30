package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/cluster"
	"github.com/xraph/foreman/id"
)

// RegisterInstance adds a new instance to the cluster registry.
func (s *Store) RegisterInstance(ctx context.Context, inst *cluster.Instance) error {
	iID := inst.ID.String()
	key := instanceKey(iID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, instanceToMap(inst))
	pipe.SAdd(ctx, instanceIDsKey, iID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: register instance: %w", err)
	}
	return nil
}

// DeregisterInstance removes an instance from the cluster registry.
func (s *Store) DeregisterInstance(ctx context.Context, instanceID id.InstanceID) error {
	iID := instanceID.String()
	key := instanceKey(iID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: deregister exists: %w", err)
	}
	if exists == 0 {
		return foreman.ErrInstanceNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, instanceIDsKey, iID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: deregister instance: %w", err)
	}
	return nil
}

// HeartbeatInstance updates the last-seen timestamp for an instance.
func (s *Store) HeartbeatInstance(ctx context.Context, instanceID id.InstanceID) error {
	key := instanceKey(instanceID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return foreman.ErrInstanceNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"last_seen", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: heartbeat instance: %w", err)
	}
	return nil
}

// ListInstances returns all registered instances, oldest first.
func (s *Store) ListInstances(ctx context.Context) ([]*cluster.Instance, error) {
	ids, err := s.client.SMembers(ctx, instanceIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: list instances: %w", err)
	}

	instances := make([]*cluster.Instance, 0, len(ids))
	for _, iID := range ids {
		vals, getErr := s.client.HGetAll(ctx, instanceKey(iID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		inst, convErr := mapToInstance(vals)
		if convErr != nil {
			continue
		}
		instances = append(instances, inst)
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})
	return instances, nil
}

// ReapDeadInstances returns instances whose last-seen timestamp is older
// than the threshold.
func (s *Store) ReapDeadInstances(ctx context.Context, threshold time.Duration) ([]*cluster.Instance, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	ids, err := s.client.SMembers(ctx, instanceIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: reap smembers: %w", err)
	}

	var dead []*cluster.Instance
	for _, iID := range ids {
		vals, getErr := s.client.HGetAll(ctx, instanceKey(iID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		inst, convErr := mapToInstance(vals)
		if convErr != nil {
			continue
		}
		if inst.LastSeen.Before(cutoff) {
			dead = append(dead, inst)
		}
	}
	return dead, nil
}

// AcquireLeadership attempts to become the cluster leader.
func (s *Store) AcquireLeadership(ctx context.Context, instanceID id.InstanceID, ttl time.Duration) (bool, error) {
	iID := instanceID.String()
	iKey := instanceKey(iID)

	// Check instance exists.
	exists, err := s.client.Exists(ctx, iKey).Result()
	if err != nil {
		return false, fmt.Errorf("foreman/redis: acquire leadership exists: %w", err)
	}
	if exists == 0 {
		return false, foreman.ErrInstanceNotFound
	}

	// Try SET NX with TTL (atomic acquire).
	ok, err := s.client.SetNX(ctx, leaderKey, iID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("foreman/redis: acquire leadership setnx: %w", err)
	}
	if ok {
		s.mirrorLeadership(ctx, iKey, ttl)
		return true, nil
	}

	// Check if we already hold it.
	current, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("foreman/redis: acquire leadership get: %w", err)
	}
	if current == iID {
		// Re-acquire: extend TTL.
		if eErr := s.client.Expire(ctx, leaderKey, ttl).Err(); eErr != nil {
			s.logger.Warn("failed to expire leader key", "error", eErr)
		}
		s.mirrorLeadership(ctx, iKey, ttl)
		return true, nil
	}

	return false, nil
}

// RenewLeadership extends the leader's hold.
func (s *Store) RenewLeadership(ctx context.Context, instanceID id.InstanceID, ttl time.Duration) (bool, error) {
	iID := instanceID.String()

	current, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil // no leader
		}
		return false, fmt.Errorf("foreman/redis: renew leadership get: %w", err)
	}
	if current != iID {
		return false, nil // not the leader
	}

	if eErr := s.client.Expire(ctx, leaderKey, ttl).Err(); eErr != nil {
		s.logger.Warn("failed to expire leader key", "error", eErr)
	}
	s.mirrorLeadership(ctx, instanceKey(iID), ttl)
	return true, nil
}

// GetLeader returns the current cluster leader, or nil if there is no
// leader.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Instance, error) {
	iID, err := s.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil // no leader
		}
		return nil, fmt.Errorf("foreman/redis: get leader: %w", err)
	}

	vals, err := s.client.HGetAll(ctx, instanceKey(iID)).Result()
	if err != nil || len(vals) == 0 {
		return nil, nil // leader key exists but instance gone
	}
	return mapToInstance(vals)
}

// ── helpers ──

func (s *Store) mirrorLeadership(ctx context.Context, key string, ttl time.Duration) {
	until := time.Now().UTC().Add(ttl)
	if _, err := s.client.HSet(ctx, key,
		"is_leader", "1",
		"leader_until", until.Format(time.RFC3339Nano),
	).Result(); err != nil {
		s.logger.Warn("failed to update leader fields", "error", err)
	}
}

func instanceToMap(inst *cluster.Instance) map[string]interface{} {
	m := map[string]interface{}{
		"id":           inst.ID.String(),
		"hostname":     inst.Hostname,
		"capabilities": marshalJSON(inst.Capabilities),
		"concurrency":  strconv.Itoa(inst.Concurrency),
		"state":        string(inst.State),
		"is_leader":    boolToStr(inst.IsLeader),
		"last_seen":    inst.LastSeen.Format(time.RFC3339Nano),
		"metadata":     marshalJSON(inst.Metadata),
		"created_at":   inst.CreatedAt.Format(time.RFC3339Nano),
	}
	if inst.LeaderUntil != nil {
		m["leader_until"] = inst.LeaderUntil.Format(time.RFC3339Nano)
	}
	return m
}

func mapToInstance(m map[string]string) (*cluster.Instance, error) {
	iID, err := id.ParseInstanceID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: parse instance id: %w", err)
	}

	concurrency, _ := strconv.Atoi(m["concurrency"])              //nolint:errcheck // best-effort parse from trusted Redis data
	lastSeen, _ := time.Parse(time.RFC3339Nano, m["last_seen"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	inst := &cluster.Instance{
		ID:           iID,
		Hostname:     m["hostname"],
		Capabilities: unmarshalStrings(m["capabilities"]),
		Concurrency:  concurrency,
		State:        cluster.InstanceState(m["state"]),
		IsLeader:     m["is_leader"] == "1",
		LastSeen:     lastSeen,
		Metadata:     unmarshalMap(m["metadata"]),
		CreatedAt:    createdAt,
	}

	if v := m["leader_until"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		inst.LeaderUntil = &t
	}
	return inst, nil
}

func boolToStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
