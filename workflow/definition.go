package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is a named workflow: an ordered list of phases forming a
// DAG. Definitions are static data; they carry no execution state.
type Definition struct {
	// Name uniquely identifies the workflow within a registry.
	Name string `json:"name" yaml:"name"`

	// Description is free-form text shown by listing commands.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Phases in declaration order. Declaration order is the tiebreak for
	// every scheduling and merge decision, so it is semantically load
	// bearing, not cosmetic.
	Phases []Phase `json:"phases" yaml:"phases"`
}

// Phase is one stage of a workflow. All of its workers are dispatched
// together (in parallel or sequentially) and the phase completes when
// its loop predicate holds or its workers finish.
type Phase struct {
	// Name uniquely identifies the phase within its definition.
	Name string `json:"name" yaml:"name"`

	// Workers to dispatch, in declaration order.
	Workers []WorkerRef `json:"workers" yaml:"workers"`

	// Parallel dispatches all workers concurrently when true. Sequential
	// phases short-circuit on the first failure; parallel phases always
	// wait for every worker.
	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty"`

	// DependsOn names the phases that must succeed before this one is
	// eligible. A nil slice means "the previously declared phase"; an
	// explicitly empty slice marks a root phase with no prerequisites.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Loop, when set, re-runs the phase until its predicate holds over
	// the phase's latest outcomes or MaxIterations is exhausted.
	Loop *Loop `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// Sequential reports whether the phase dispatches workers one at a time.
func (p *Phase) Sequential() bool { return !p.Parallel }

// Loop bounds a validation cycle. The predicate is evaluated against
// the merged numeric values of the phase's latest iteration; while it is
// false the phase re-runs, up to MaxIterations total iterations.
type Loop struct {
	// Until holds the exit condition, e.g. "criticalCount == 0".
	Until Predicate `json:"until" yaml:"until"`

	// MaxIterations caps total iterations, first run included. Zero
	// means "use the engine default".
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`

	// Backoff names a delay strategy applied between iterations
	// ("none", "linear", "exponential"). Empty means none.
	Backoff string `json:"backoff,omitempty" yaml:"backoff,omitempty"`
}

// WorkerRef selects a worker for a phase, either directly by ID or
// indirectly by capability tag. Exactly one of ID and Capability must be
// set. Capability refs resolve against the registry at dispatch time and
// fan out to every worker advertising the tag.
type WorkerRef struct {
	// ID names a registered worker directly.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Capability selects all workers advertising the tag, in
	// registration order.
	Capability string `json:"capability,omitempty" yaml:"capability,omitempty"`

	// Advisory marks the worker's failure as non-fatal: the phase
	// records it but does not fail because of it.
	Advisory bool `json:"advisory,omitempty" yaml:"advisory,omitempty"`
}

// UnmarshalYAML accepts either a bare worker ID or the full mapping
// form, so phase worker lists read naturally:
//
//	workers: [code-reviewer, security-scanner]
//	workers:
//	  - id: code-reviewer
//	  - capability: lint
//	    advisory: true
func (r *WorkerRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var id string
		if err := node.Decode(&id); err != nil {
			return err
		}
		*r = WorkerRef{ID: id}
		return nil
	}
	type plain WorkerRef
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = WorkerRef(p)
	return nil
}

// Validate checks that the ref names exactly one selector.
func (r *WorkerRef) Validate() error {
	switch {
	case r.ID == "" && r.Capability == "":
		return fmt.Errorf("worker ref: id or capability required")
	case r.ID != "" && r.Capability != "":
		return fmt.Errorf("worker ref %q: id and capability are mutually exclusive", r.ID)
	}
	return nil
}

// String renders the ref for logs and diagnostics.
func (r *WorkerRef) String() string {
	if r.Capability != "" {
		return "capability:" + r.Capability
	}
	return r.ID
}

// Normalize fills implied fields in place: nil depends_on becomes the
// previously declared phase, and loop iteration caps default to
// defaultMaxIterations. Call it once after decoding, before Validate.
func (d *Definition) Normalize(defaultMaxIterations int) {
	for i := range d.Phases {
		p := &d.Phases[i]
		if p.DependsOn == nil {
			if i == 0 {
				p.DependsOn = []string{}
			} else {
				p.DependsOn = []string{d.Phases[i-1].Name}
			}
		}
		if p.Loop != nil && p.Loop.MaxIterations <= 0 {
			p.Loop.MaxIterations = defaultMaxIterations
		}
	}
}

// Validate checks structural integrity: non-empty name, at least one
// phase, unique phase names, valid worker refs, dependencies that name
// declared phases, and an acyclic dependency graph. Loop self-edges are
// not part of the graph; they are bounded separately by MaxIterations.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow: name required")
	}
	if len(d.Phases) == 0 {
		return fmt.Errorf("workflow %q: at least one phase required", d.Name)
	}

	index := make(map[string]int, len(d.Phases))
	for i := range d.Phases {
		p := &d.Phases[i]
		if p.Name == "" {
			return fmt.Errorf("workflow %q: phase %d: name required", d.Name, i)
		}
		if _, dup := index[p.Name]; dup {
			return fmt.Errorf("workflow %q: duplicate phase %q", d.Name, p.Name)
		}
		index[p.Name] = i

		if len(p.Workers) == 0 {
			return fmt.Errorf("workflow %q: phase %q: at least one worker required", d.Name, p.Name)
		}
		for j := range p.Workers {
			if err := p.Workers[j].Validate(); err != nil {
				return fmt.Errorf("workflow %q: phase %q: %w", d.Name, p.Name, err)
			}
		}
		if p.Loop != nil {
			if p.Loop.Until.IsZero() {
				return fmt.Errorf("workflow %q: phase %q: loop requires an until predicate", d.Name, p.Name)
			}
			if p.Loop.MaxIterations < 1 {
				return fmt.Errorf("workflow %q: phase %q: loop max_iterations must be >= 1", d.Name, p.Name)
			}
		}
	}

	for i := range d.Phases {
		p := &d.Phases[i]
		for _, dep := range p.DependsOn {
			if dep == p.Name {
				return fmt.Errorf("workflow %q: phase %q depends on itself", d.Name, p.Name)
			}
			if _, ok := index[dep]; !ok {
				return fmt.Errorf("workflow %q: phase %q depends on unknown phase %q", d.Name, p.Name, dep)
			}
		}
	}

	if cycle := d.findCycle(index); len(cycle) > 0 {
		return fmt.Errorf("workflow %q: dependency cycle: %v", d.Name, cycle)
	}
	return nil
}

// Phase returns the named phase, or nil.
func (d *Definition) Phase(name string) *Phase {
	for i := range d.Phases {
		if d.Phases[i].Name == name {
			return &d.Phases[i]
		}
	}
	return nil
}

// Roots returns the phases with no dependencies, in declaration order.
// On a normalized definition this is the set of entry points.
func (d *Definition) Roots() []string {
	var roots []string
	for i := range d.Phases {
		if len(d.Phases[i].DependsOn) == 0 {
			roots = append(roots, d.Phases[i].Name)
		}
	}
	return roots
}

// Dependents returns the phases that list name in depends_on, in
// declaration order.
func (d *Definition) Dependents(name string) []string {
	var out []string
	for i := range d.Phases {
		for _, dep := range d.Phases[i].DependsOn {
			if dep == name {
				out = append(out, d.Phases[i].Name)
				break
			}
		}
	}
	return out
}

// findCycle runs a three-color DFS over the dependency graph and
// returns one cycle as a phase-name path, or nil when acyclic.
func (d *Definition) findCycle(index map[string]int) []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(d.Phases))
	var path []string

	var visit func(i int) []string
	visit = func(i int) []string {
		color[i] = gray
		path = append(path, d.Phases[i].Name)
		for _, dep := range d.Phases[i].DependsOn {
			j := index[dep]
			switch color[j] {
			case gray:
				return append(path, dep)
			case white:
				if cycle := visit(j); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		color[i] = black
		return nil
	}

	for i := range d.Phases {
		if color[i] == white {
			if cycle := visit(i); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
