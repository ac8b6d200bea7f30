package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/workflow"
)

// CreateRun stores the run as a Hash and indexes its ID.
func (s *Store) CreateRun(ctx context.Context, r *workflow.Run) error {
	rID := r.ID.String()
	key := runKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: create run exists: %w", err)
	}
	if exists > 0 {
		return foreman.ErrRunAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, runToMap(r))
	pipe.SAdd(ctx, runIDsKey, rID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	vals, err := s.client.HGetAll(ctx, runKey(runID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, foreman.ErrRunNotFound
	}
	return mapToRun(vals)
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, r *workflow.Run) error {
	key := runKey(r.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: update run exists: %w", err)
	}
	if exists == 0 {
		return foreman.ErrRunNotFound
	}

	fields := runToMap(r)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.client.HSet(ctx, key, fields).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: update run: %w", err)
	}
	return nil
}

// ListRuns returns runs matching opts, newest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	runs, err := s.loadRuns(ctx, opts)
	if err != nil {
		return nil, err
	}

	// SMembers order is arbitrary; sort newest first with the ID string
	// (K-sortable) breaking creation-time ties.
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID.String() > runs[j].ID.String()
	})

	if opts.Offset > 0 && opts.Offset < len(runs) {
		runs = runs[opts.Offset:]
	} else if opts.Offset >= len(runs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

// CountRuns returns the number of runs matching the filter portion of opts.
func (s *Store) CountRuns(ctx context.Context, opts workflow.ListOpts) (int, error) {
	runs, err := s.loadRuns(ctx, opts)
	if err != nil {
		return 0, err
	}
	return len(runs), nil
}

// DeleteRun removes a run by ID.
func (s *Store) DeleteRun(ctx context.Context, runID id.RunID) error {
	rID := runID.String()
	key := runKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: delete run exists: %w", err)
	}
	if exists == 0 {
		return foreman.ErrRunNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, runIDsKey, rID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: delete run: %w", err)
	}
	return nil
}

// ── helpers ──

func (s *Store) loadRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	ids, err := s.client.SMembers(ctx, runIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: list runs smembers: %w", err)
	}

	runs := make([]*workflow.Run, 0, len(ids))
	for _, rID := range ids {
		vals, getErr := s.client.HGetAll(ctx, runKey(rID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		r, convErr := mapToRun(vals)
		if convErr != nil {
			continue
		}
		if !opts.Match(r) {
			continue
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func runToMap(r *workflow.Run) map[string]interface{} {
	m := map[string]interface{}{
		"id":             r.ID.String(),
		"workflow":       r.Workflow,
		"status":         string(r.Status),
		"phases":         marshalJSON(r.Phases),
		"focus":          marshalJSON(r.Focus),
		"interactive":    boolToStr(r.Interactive),
		"max_iterations": strconv.Itoa(r.MaxIterations),
		"depth":          strconv.Itoa(r.Depth),
		"source":         r.Source,
		"error":          r.Error,
		"created_at":     r.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":     r.UpdatedAt.Format(time.RFC3339Nano),
	}
	if r.StartedAt != nil {
		m["started_at"] = r.StartedAt.Format(time.RFC3339Nano)
	}
	if r.CompletedAt != nil {
		m["completed_at"] = r.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToRun(m map[string]string) (*workflow.Run, error) {
	rID, err := id.ParseRunID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: parse run id: %w", err)
	}

	maxIter, _ := strconv.Atoi(m["max_iterations"])              //nolint:errcheck // best-effort parse from trusted Redis data
	depth, _ := strconv.Atoi(m["depth"])                         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	var phases map[string]*workflow.PhaseCursor
	if v := m["phases"]; v != "" && v != "null" {
		_ = json.Unmarshal([]byte(v), &phases) //nolint:errcheck // best-effort parse from trusted Redis data
	}

	r := &workflow.Run{
		Entity: foreman.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:            rID,
		Workflow:      m["workflow"],
		Status:        workflow.Status(m["status"]),
		Phases:        phases,
		Focus:         unmarshalStrings(m["focus"]),
		Interactive:   m["interactive"] == "1",
		MaxIterations: maxIter,
		Depth:         depth,
		Source:        m["source"],
		Error:         m["error"],
	}

	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.CompletedAt = &t
	}
	return r, nil
}
