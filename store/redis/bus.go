package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/bus"
	"github.com/xraph/foreman/id"
)

// PutEntry appends a context entry with insert-only semantics. Each run's
// entries live in one Hash, one field per bus key; HSETNX makes the
// collision check and the insert a single atomic operation. Sequence
// numbers come from a per-run counter, so they are monotonic but may have
// gaps when a write collides.
func (s *Store) PutEntry(ctx context.Context, runID id.RunID, entry *bus.Entry) error {
	rID := runID.String()

	seq, err := s.client.Incr(ctx, busSeqKey(rID)).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: put entry incr: %w", err)
	}
	entry.Seq = seq

	set, err := s.client.HSetNX(ctx, busKey(rID), entry.Key.String(), marshalJSON(entry)).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: put entry: %w", err)
	}
	if !set {
		return bus.ErrKeyCollision
	}
	return nil
}

// GetEntry retrieves the entry at the exact key.
func (s *Store) GetEntry(ctx context.Context, runID id.RunID, key bus.Key) (*bus.Entry, error) {
	raw, err := s.client.HGet(ctx, busKey(runID.String()), key.String()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, foreman.ErrEntryNotFound
		}
		return nil, fmt.Errorf("foreman/redis: get entry: %w", err)
	}

	var entry bus.Entry
	if uErr := json.Unmarshal([]byte(raw), &entry); uErr != nil {
		return nil, fmt.Errorf("foreman/redis: decode entry: %w", uErr)
	}
	return &entry, nil
}

// LatestField returns the highest-Seq entry naming the given field, or
// nil when the field was never written.
func (s *Store) LatestField(ctx context.Context, runID id.RunID, field string) (*bus.Entry, error) {
	entries, err := s.ListEntries(ctx, runID)
	if err != nil {
		return nil, err
	}

	var latest *bus.Entry
	for _, e := range entries {
		if e.Key.Field != field {
			continue
		}
		if latest == nil || e.Seq > latest.Seq {
			latest = e
		}
	}
	return latest, nil
}

// ListEntries returns all entries of the run in Seq order.
func (s *Store) ListEntries(ctx context.Context, runID id.RunID) ([]*bus.Entry, error) {
	vals, err := s.client.HGetAll(ctx, busKey(runID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: list entries: %w", err)
	}

	entries := make([]*bus.Entry, 0, len(vals))
	for _, raw := range vals {
		var entry bus.Entry
		if uErr := json.Unmarshal([]byte(raw), &entry); uErr != nil {
			continue // skip corrupt
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

// DeleteEntries removes every entry of the run.
func (s *Store) DeleteEntries(ctx context.Context, runID id.RunID) error {
	rID := runID.String()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, busKey(rID))
	pipe.Del(ctx, busSeqKey(rID))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: delete entries: %w", err)
	}
	return nil
}
