package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
)

// AppendInvocation stores the invocation as a Hash and appends its ID to
// the run's invocation List, preserving append order.
func (s *Store) AppendInvocation(ctx context.Context, inv *worker.Invocation) error {
	iID := inv.ID.String()
	key := invocationKey(iID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: append invocation exists: %w", err)
	}

	if exists > 0 {
		// Re-append updates the record in place without duplicating the
		// List entry.
		_, err = s.client.HSet(ctx, key, invocationToMap(inv)).Result()
		if err != nil {
			return fmt.Errorf("foreman/redis: append invocation update: %w", err)
		}
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, invocationToMap(inv))
	pipe.RPush(ctx, runInvocationsKey(inv.RunID.String()), iID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: append invocation: %w", err)
	}
	return nil
}

// GetInvocation retrieves an invocation by ID.
func (s *Store) GetInvocation(ctx context.Context, invID id.InvocationID) (*worker.Invocation, error) {
	vals, err := s.client.HGetAll(ctx, invocationKey(invID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: get invocation: %w", err)
	}
	if len(vals) == 0 {
		return nil, foreman.ErrInvocationNotFound
	}
	return mapToInvocation(vals)
}

// ListInvocations returns a run's invocations in append order.
func (s *Store) ListInvocations(ctx context.Context, runID id.RunID, opts worker.ListOpts) ([]*worker.Invocation, error) {
	start := int64(opts.Offset)
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}

	ids, err := s.client.LRange(ctx, runInvocationsKey(runID.String()), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: list invocations lrange: %w", err)
	}

	invs := make([]*worker.Invocation, 0, len(ids))
	for _, iID := range ids {
		vals, getErr := s.client.HGetAll(ctx, invocationKey(iID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		inv, convErr := mapToInvocation(vals)
		if convErr != nil {
			continue
		}
		invs = append(invs, inv)
	}
	return invs, nil
}

// CountInvocations returns the number of invocations recorded for a run.
func (s *Store) CountInvocations(ctx context.Context, runID id.RunID) (int64, error) {
	n, err := s.client.LLen(ctx, runInvocationsKey(runID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("foreman/redis: count invocations: %w", err)
	}
	return n, nil
}

// ── helpers ──

func invocationToMap(inv *worker.Invocation) map[string]interface{} {
	m := map[string]interface{}{
		"id":         inv.ID.String(),
		"run_id":     inv.RunID.String(),
		"workflow":   inv.Workflow,
		"phase":      inv.Phase,
		"iteration":  strconv.Itoa(inv.Iteration),
		"worker":     inv.Worker,
		"advisory":   boolToStr(inv.Advisory),
		"inputs":     marshalJSON(inv.Inputs),
		"snapshot":   marshalJSON(inv.Snapshot),
		"timeout":    strconv.FormatInt(int64(inv.Timeout), 10),
		"status":     string(inv.Status),
		"elapsed":    strconv.FormatInt(int64(inv.Elapsed), 10),
		"created_at": inv.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": inv.UpdatedAt.Format(time.RFC3339Nano),
	}
	if inv.Outcome != nil {
		m["outcome"] = marshalJSON(inv.Outcome)
	}
	if inv.StartedAt != nil {
		m["started_at"] = inv.StartedAt.Format(time.RFC3339Nano)
	}
	if inv.CompletedAt != nil {
		m["completed_at"] = inv.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToInvocation(m map[string]string) (*worker.Invocation, error) {
	iID, err := id.ParseInvocationID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: parse invocation id: %w", err)
	}
	rID, err := id.ParseRunID(m["run_id"])
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: parse invocation run id: %w", err)
	}

	iteration, _ := strconv.Atoi(m["iteration"])                  //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)          //nolint:errcheck // best-effort parse from trusted Redis data
	elapsed, _ := strconv.ParseInt(m["elapsed"], 10, 64)          //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	inv := &worker.Invocation{
		Entity: foreman.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:        iID,
		RunID:     rID,
		Workflow:  m["workflow"],
		Phase:     m["phase"],
		Iteration: iteration,
		Worker:    m["worker"],
		Advisory:  m["advisory"] == "1",
		Inputs:    unmarshalRawMap(m["inputs"]),
		Snapshot:  unmarshalRawMap(m["snapshot"]),
		Timeout:   time.Duration(timeout),
		Status:    worker.Status(m["status"]),
		Elapsed:   time.Duration(elapsed),
	}

	if v := m["outcome"]; v != "" && v != "null" {
		var out worker.Outcome
		_ = json.Unmarshal([]byte(v), &out) //nolint:errcheck // best-effort parse from trusted Redis data
		inv.Outcome = &out
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		inv.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		inv.CompletedAt = &t
	}
	return inv, nil
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

// unmarshalStrings parses a JSON array of strings.
func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}

// unmarshalMap parses a JSON map.
func unmarshalMap(s string) map[string]string {
	if s == "" || s == "null" {
		return nil
	}
	out := make(map[string]string)
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}

// unmarshalRawMap parses a JSON map of raw values.
func unmarshalRawMap(s string) map[string]json.RawMessage {
	if s == "" || s == "null" {
		return nil
	}
	out := make(map[string]json.RawMessage)
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}
