package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownWorker is returned when a worker ID is not registered.
	ErrUnknownWorker = errors.New("foreman: unknown worker")

	// ErrDuplicateWorker is returned when a worker ID is registered twice
	// without an explicit replace.
	ErrDuplicateWorker = errors.New("foreman: duplicate worker")

	// ErrTimeout marks an invocation that exceeded its deadline.
	ErrTimeout = errors.New("foreman: worker invocation timed out")

	// ErrInvocation wraps any failure surfaced by an external capability.
	ErrInvocation = errors.New("foreman: worker invocation failed")
)

// ContractField names a context bus field a worker reads or writes.
// An input field with no default must have been written by an earlier
// worker; resolving it otherwise is a fatal contract violation.
type ContractField struct {
	Name string `json:"name" yaml:"name"`

	// Default is the JSON value substituted when the field was never
	// written. Nil means the field is required.
	Default json.RawMessage `json:"default,omitempty" yaml:"default,omitempty"`
}

// UnmarshalYAML accepts either a bare field name or a {name, default} map.
func (c *ContractField) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&c.Name)
	}

	var raw struct {
		Name    string `yaml:"name"`
		Default any    `yaml:"default"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Name == "" {
		return fmt.Errorf("contract field: missing name")
	}
	c.Name = raw.Name
	if raw.Default != nil {
		data, err := json.Marshal(raw.Default)
		if err != nil {
			return fmt.Errorf("contract field %q: encode default: %w", raw.Name, err)
		}
		c.Default = data
	}
	return nil
}

// Descriptor declares a capability worker to the engine.
type Descriptor struct {
	// ID is the unique, human-chosen worker identifier,
	// e.g. "code-reviewer".
	ID string `json:"id" yaml:"id"`

	// Description is free-form prose shown in listings.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Capabilities tags the worker for capability-based selection and
	// focus filtering, e.g. "security-review", "test-generation".
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`

	// Triggers is the ordered list of predicates that cause
	// auto-invocation when an observed event matches.
	Triggers []TriggerPredicate `json:"triggers,omitempty" yaml:"triggers,omitempty"`

	// Inputs and Outputs name the context bus fields this worker reads
	// and writes.
	Inputs  []ContractField `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string        `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Timeout is the per-invocation deadline. Zero falls back to the
	// engine default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Command, when set, invokes the worker as an external subprocess
	// speaking JSON over stdio. Used by the CLI; in-process invokers
	// registered programmatically leave it empty.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`
}

// HasCapability reports whether the descriptor carries the given tag.
func (d *Descriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// MatchesFocus reports whether the descriptor matches any of the given
// focus tags, either by worker ID or by capability. An empty focus
// matches everything.
func (d *Descriptor) MatchesFocus(focus []string) bool {
	if len(focus) == 0 {
		return true
	}
	for _, tag := range focus {
		if tag == d.ID || d.HasCapability(tag) {
			return true
		}
	}
	return false
}

// Validate checks the descriptor for static errors.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("worker descriptor: missing id")
	}
	seen := make(map[string]struct{}, len(d.Inputs))
	for _, in := range d.Inputs {
		if in.Name == "" {
			return fmt.Errorf("worker %q: input with empty name", d.ID)
		}
		if _, dup := seen[in.Name]; dup {
			return fmt.Errorf("worker %q: duplicate input field %q", d.ID, in.Name)
		}
		seen[in.Name] = struct{}{}
	}
	return nil
}
