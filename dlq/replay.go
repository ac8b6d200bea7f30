package dlq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
)

// Replay publishes an ExplicitCommand event naming the original worker
// with the original inputs, and marks the entry as replayed. The
// dispatch then flows through the normal trigger path with an explicit
// target, so predicates are bypassed but depth limits and capability
// lanes still apply.
func (s *Service) Replay(ctx context.Context, entryID id.DeadLetterID) (*event.Event, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	args := make(map[string]any, len(entry.Inputs))
	for name, raw := range entry.Inputs {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("dlq: decode input %q: %w", name, err)
		}
		args[name] = v
	}

	evt := event.NewExplicitCommand(event.ExplicitCommandPayload{
		Worker: entry.Worker,
		Args:   args,
	}, "replay:"+entryID.String())

	if err := s.events.PublishEvent(ctx, evt); err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The command is already published. Return it with the marking error.
		return evt, err
	}

	return evt, nil
}
