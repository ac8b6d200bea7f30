package workflow_test

import (
	"strings"
	"testing"

	"github.com/xraph/foreman/workflow"
)

func qualityDef() *workflow.Definition {
	return &workflow.Definition{
		Name: "quality-sprint",
		Phases: []workflow.Phase{
			{
				Name:    "review",
				Workers: []workflow.WorkerRef{{ID: "code-reviewer"}},
				Loop: &workflow.Loop{
					Until:         workflow.MustParsePredicate("criticalCount == 0"),
					MaxIterations: 3,
				},
			},
			{Name: "refactor", Workers: []workflow.WorkerRef{{ID: "refactoring-expert"}}},
			{Name: "test", Workers: []workflow.WorkerRef{{ID: "test-generator"}}},
			{Name: "document", Workers: []workflow.WorkerRef{{ID: "doc-writer"}}},
		},
	}
}

func TestNormalizeChainsPhases(t *testing.T) {
	def := qualityDef()
	def.Normalize(3)

	if got := def.Phases[0].DependsOn; len(got) != 0 {
		t.Errorf("first phase DependsOn = %v, want empty", got)
	}
	for i := 1; i < len(def.Phases); i++ {
		got := def.Phases[i].DependsOn
		want := def.Phases[i-1].Name
		if len(got) != 1 || got[0] != want {
			t.Errorf("phase %q DependsOn = %v, want [%s]", def.Phases[i].Name, got, want)
		}
	}
}

func TestNormalizeKeepsExplicitRoots(t *testing.T) {
	def := &workflow.Definition{
		Name: "fanout",
		Phases: []workflow.Phase{
			{Name: "a", Workers: []workflow.WorkerRef{{ID: "w"}}},
			{Name: "b", Workers: []workflow.WorkerRef{{ID: "w"}}, DependsOn: []string{}},
			{Name: "c", Workers: []workflow.WorkerRef{{ID: "w"}}, DependsOn: []string{"a", "b"}},
		},
	}
	def.Normalize(3)

	if got := def.Roots(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Roots = %v, want [a b]", got)
	}
	if got := def.Dependents("a"); len(got) != 1 || got[0] != "c" {
		t.Errorf("Dependents(a) = %v, want [c]", got)
	}
}

func TestNormalizeDefaultsLoopIterations(t *testing.T) {
	def := qualityDef()
	def.Phases[0].Loop.MaxIterations = 0
	def.Normalize(5)

	if got := def.Phases[0].Loop.MaxIterations; got != 5 {
		t.Errorf("MaxIterations = %d, want 5", got)
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	def := qualityDef()
	def.Normalize(3)
	if err := def.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*workflow.Definition)
		want   string
	}{
		{
			name:   "missing workflow name",
			mutate: func(d *workflow.Definition) { d.Name = "" },
			want:   "name required",
		},
		{
			name:   "no phases",
			mutate: func(d *workflow.Definition) { d.Phases = nil },
			want:   "at least one phase",
		},
		{
			name:   "duplicate phase",
			mutate: func(d *workflow.Definition) { d.Phases[1].Name = "review" },
			want:   "duplicate phase",
		},
		{
			name:   "phase without workers",
			mutate: func(d *workflow.Definition) { d.Phases[2].Workers = nil },
			want:   "at least one worker",
		},
		{
			name: "worker ref with both selectors",
			mutate: func(d *workflow.Definition) {
				d.Phases[0].Workers[0] = workflow.WorkerRef{ID: "x", Capability: "y"}
			},
			want: "mutually exclusive",
		},
		{
			name: "worker ref with no selector",
			mutate: func(d *workflow.Definition) {
				d.Phases[0].Workers[0] = workflow.WorkerRef{}
			},
			want: "id or capability required",
		},
		{
			name: "unknown dependency",
			mutate: func(d *workflow.Definition) {
				d.Phases[3].DependsOn = []string{"nope"}
			},
			want: "unknown phase",
		},
		{
			name: "self dependency",
			mutate: func(d *workflow.Definition) {
				d.Phases[1].DependsOn = []string{"refactor"}
			},
			want: "depends on itself",
		},
		{
			name: "loop without predicate",
			mutate: func(d *workflow.Definition) {
				d.Phases[0].Loop = &workflow.Loop{MaxIterations: 3}
			},
			want: "until predicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := qualityDef()
			def.Normalize(3)
			tt.mutate(def)
			err := def.Validate()
			if err == nil {
				t.Fatal("Validate: expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	def := &workflow.Definition{
		Name: "loopy",
		Phases: []workflow.Phase{
			{Name: "a", Workers: []workflow.WorkerRef{{ID: "w"}}, DependsOn: []string{"c"}},
			{Name: "b", Workers: []workflow.WorkerRef{{ID: "w"}}, DependsOn: []string{"a"}},
			{Name: "c", Workers: []workflow.WorkerRef{{ID: "w"}}, DependsOn: []string{"b"}},
		},
	}
	err := def.Validate()
	if err == nil {
		t.Fatal("Validate: expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %q, want cycle mention", err)
	}
}

func TestPhaseLookup(t *testing.T) {
	def := qualityDef()
	if p := def.Phase("test"); p == nil || p.Name != "test" {
		t.Errorf("Phase(test) = %v", p)
	}
	if p := def.Phase("nope"); p != nil {
		t.Errorf("Phase(nope) = %v, want nil", p)
	}
}

func TestWorkerRefString(t *testing.T) {
	if got := (&workflow.WorkerRef{ID: "code-reviewer"}).String(); got != "code-reviewer" {
		t.Errorf("String = %q", got)
	}
	if got := (&workflow.WorkerRef{Capability: "lint"}).String(); got != "capability:lint" {
		t.Errorf("String = %q", got)
	}
}
