package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
)

// PublishEvent stores the event as a Hash and adds it to the pending
// Sorted Set, scored by publish time so the oldest event is claimed first.
func (s *Store) PublishEvent(ctx context.Context, evt *event.Event) error {
	eID := evt.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, eventKey(eID), eventToMap(evt))
	pipe.SAdd(ctx, eventIDsKey, eID)
	pipe.ZAdd(ctx, eventPendingKey, goredis.Z{
		Score:  float64(evt.CreatedAt.UnixMilli()),
		Member: eID,
	})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: publish event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.Event, error) {
	vals, err := s.client.HGetAll(ctx, eventKey(eventID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: get event: %w", err)
	}
	if len(vals) == 0 {
		return nil, foreman.ErrEventNotFound
	}
	return mapToEvent(vals)
}

// ClaimEvent atomically pops the oldest pending event. ZPOPMIN removes
// the ID from the pending set in one step, so no two claimers can pop the
// same event. Returns nil when nothing is pending.
func (s *Store) ClaimEvent(ctx context.Context) (*event.Event, error) {
	for {
		members, err := s.client.ZPopMin(ctx, eventPendingKey, 1).Result()
		if err != nil {
			return nil, fmt.Errorf("foreman/redis: claim event zpopmin: %w", err)
		}
		if len(members) == 0 {
			return nil, nil
		}

		eID, ok := members[0].Member.(string)
		if !ok {
			continue
		}
		key := eventKey(eID)

		vals, getErr := s.client.HGetAll(ctx, key).Result()
		if getErr != nil {
			return nil, fmt.Errorf("foreman/redis: claim event get: %w", getErr)
		}
		if len(vals) == 0 {
			continue // pruned while pending
		}

		if _, hErr := s.client.HSet(ctx, key, "claimed", "1").Result(); hErr != nil {
			return nil, fmt.Errorf("foreman/redis: claim event mark: %w", hErr)
		}

		evt, convErr := mapToEvent(vals)
		if convErr != nil {
			return nil, convErr
		}
		evt.Claimed = true
		return evt, nil
	}
}

// AckEvent acknowledges an event, marking it as consumed. Acked events
// are also dropped from the pending set so they can never be claimed.
func (s *Store) AckEvent(ctx context.Context, eventID id.EventID) error {
	eID := eventID.String()
	key := eventKey(eID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("foreman/redis: ack event exists: %w", err)
	}
	if exists == 0 {
		return foreman.ErrEventNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "acked", "1")
	pipe.ZRem(ctx, eventPendingKey, eID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("foreman/redis: ack event: %w", err)
	}
	return nil
}

// PruneEvents deletes acked events older than the given threshold.
func (s *Store) PruneEvents(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	ids, err := s.client.SMembers(ctx, eventIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("foreman/redis: prune events smembers: %w", err)
	}

	var pruned int
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, eventKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		evt, convErr := mapToEvent(vals)
		if convErr != nil {
			continue
		}
		if !evt.Acked || !evt.CreatedAt.Before(cutoff) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, eventKey(eID))
		pipe.SRem(ctx, eventIDsKey, eID)
		pipe.ZRem(ctx, eventPendingKey, eID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return pruned, fmt.Errorf("foreman/redis: prune event: %w", pErr)
		}
		pruned++
	}
	return pruned, nil
}

// ── helpers ──

func eventToMap(e *event.Event) map[string]interface{} {
	return map[string]interface{}{
		"id":         e.ID.String(),
		"kind":       string(e.Kind),
		"payload":    string(e.Payload),
		"source":     e.Source,
		"depth":      strconv.Itoa(e.Depth),
		"claimed":    boolToStr(e.Claimed),
		"acked":      boolToStr(e.Acked),
		"created_at": e.CreatedAt.Format(time.RFC3339Nano),
	}
}

func mapToEvent(m map[string]string) (*event.Event, error) {
	eID, err := id.ParseEventID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("foreman/redis: parse event id: %w", err)
	}

	depth, _ := strconv.Atoi(m["depth"])                          //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &event.Event{
		ID:        eID,
		Kind:      event.Kind(m["kind"]),
		Payload:   []byte(m["payload"]),
		Source:    m["source"],
		Depth:     depth,
		Claimed:   m["claimed"] == "1",
		Acked:     m["acked"] == "1",
		CreatedAt: createdAt,
	}, nil
}
