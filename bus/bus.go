// Package bus implements the context bus: the append-only, write-once
// keyed store through which workers exchange data within one workflow
// run. The bus is the only channel between workers — no worker may
// communicate with another directly.
//
// Every value is keyed by (phase, iteration, worker, field) and written
// exactly once; a second write to the same key is a collision error,
// never a silent overwrite. Re-running a phase uses the next iteration
// number. Reads resolve the most recent write of a field across all
// phases and iterations.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/foreman/id"
)

var (
	// ErrKeyCollision is returned when a (phase, iteration, worker, field)
	// key is written twice. A collision signals a workflow-definition bug
	// and is always fatal to the run.
	ErrKeyCollision = errors.New("foreman: context key collision")

	// ErrMissingContext is returned when a field was never written and the
	// reader's contract declares no default.
	ErrMissingContext = errors.New("foreman: missing context field")
)

// Key locates one write-once value on the bus.
type Key struct {
	Phase     string `json:"phase"`
	Iteration int    `json:"iteration"`
	Worker    string `json:"worker"`
	Field     string `json:"field"`
}

// String returns the canonical "phase#iteration/worker/field" form used
// as the storage key.
func (k Key) String() string {
	return fmt.Sprintf("%s#%d/%s/%s", k.Phase, k.Iteration, k.Worker, k.Field)
}

// Entry is one appended value. Seq is assigned by the store on insert and
// is monotonic within a run; it decides most-recent-write resolution
// independent of clocks.
type Entry struct {
	Key       Key             `json:"key"`
	Value     json.RawMessage `json:"value"`
	Seq       int64           `json:"seq"`
	WrittenAt time.Time       `json:"written_at"`
}

// Bus is the context bus of a single workflow run.
type Bus struct {
	store Store
	runID id.RunID
}

// New creates the context bus for the given run.
func New(store Store, runID id.RunID) *Bus {
	return &Bus{store: store, runID: runID}
}

// RunID returns the run this bus belongs to.
func (b *Bus) RunID() id.RunID { return b.runID }

// Write JSON-encodes v and appends it under key. A json.RawMessage or
// []byte value is stored as-is. Fails with ErrKeyCollision if the key
// already holds a value.
func (b *Bus) Write(ctx context.Context, key Key, v any) error {
	var raw json.RawMessage
	switch val := v.(type) {
	case json.RawMessage:
		raw = val
	case []byte:
		raw = val
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("bus: encode %s: %w", key, err)
		}
		raw = data
	}
	return b.WriteRaw(ctx, key, raw)
}

// WriteRaw appends a pre-encoded value under key.
func (b *Bus) WriteRaw(ctx context.Context, key Key, raw json.RawMessage) error {
	entry := &Entry{
		Key:       key,
		Value:     raw,
		WrittenAt: time.Now().UTC(),
	}
	if err := b.store.PutEntry(ctx, b.runID, entry); err != nil {
		if errors.Is(err, ErrKeyCollision) {
			return fmt.Errorf("%w: %s", ErrKeyCollision, key)
		}
		return fmt.Errorf("bus: write %s: %w", key, err)
	}
	return nil
}

// Read returns the most recent value written for field across all phases
// and iterations. Fails with ErrMissingContext if the field was never
// written.
func (b *Bus) Read(ctx context.Context, field string) (json.RawMessage, error) {
	entry, err := b.store.LatestField(ctx, b.runID, field)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingContext, field)
	}
	return entry.Value, nil
}

// ReadAt returns the most recent value the named worker wrote for field,
// ignoring writes by other workers. Fails with ErrMissingContext if that
// worker never wrote the field.
func (b *Bus) ReadAt(ctx context.Context, workerID, field string) (json.RawMessage, error) {
	entries, err := b.store.ListEntries(ctx, b.runID)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Key.Worker == workerID && entries[i].Key.Field == field {
			return entries[i].Value, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (worker %s)", ErrMissingContext, field, workerID)
}

// ReadInto decodes the most recent value of field into v.
func (b *Bus) ReadInto(ctx context.Context, field string, v any) error {
	raw, err := b.Read(ctx, field)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("bus: decode %s: %w", field, err)
	}
	return nil
}

// Snapshot returns the latest value of every field ever written, as an
// immutable copy. Workers receive it at dispatch time.
func (b *Bus) Snapshot(ctx context.Context) (map[string]json.RawMessage, error) {
	entries, err := b.store.ListEntries(ctx, b.runID)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]json.RawMessage, len(entries))
	for _, e := range entries {
		v := make(json.RawMessage, len(e.Value))
		copy(v, e.Value)
		snap[e.Key.Field] = v
	}
	return snap, nil
}

// Entries returns the full append-ordered log of the run.
func (b *Bus) Entries(ctx context.Context) ([]*Entry, error) {
	return b.store.ListEntries(ctx, b.runID)
}

// Store returns the underlying bus store.
func (b *Bus) Store() Store { return b.store }
