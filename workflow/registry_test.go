package workflow_test

import (
	"errors"
	"testing"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/workflow"
)

func minimalDef(name string) *workflow.Definition {
	def := &workflow.Definition{
		Name: name,
		Phases: []workflow.Phase{
			{Name: "only", Workers: []workflow.WorkerRef{{ID: "w"}}},
		},
	}
	def.Normalize(3)
	return def
}

func TestRegistryRegisterLookup(t *testing.T) {
	reg := workflow.NewRegistry()
	if err := reg.Register(minimalDef("quality-sprint")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	def, err := reg.Lookup("quality-sprint")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if def.Name != "quality-sprint" {
		t.Errorf("Name = %q", def.Name)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := workflow.NewRegistry()
	if err := reg.Register(minimalDef("dup")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := reg.Register(minimalDef("dup"))
	if !errors.Is(err, foreman.ErrDuplicateDefinition) {
		t.Errorf("Register duplicate = %v, want ErrDuplicateDefinition", err)
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	reg := workflow.NewRegistry()
	_, err := reg.Lookup("ghost")
	if !errors.Is(err, foreman.ErrDefinitionNotFound) {
		t.Errorf("Lookup = %v, want ErrDefinitionNotFound", err)
	}
}

func TestRegistryRejectsInvalid(t *testing.T) {
	reg := workflow.NewRegistry()
	if err := reg.Register(&workflow.Definition{Name: "empty"}); err == nil {
		t.Error("Register: expected validation error")
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d after failed register", reg.Len())
	}
}

func TestRegistryListOrder(t *testing.T) {
	reg := workflow.NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		if err := reg.Register(minimalDef(name)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	defs := reg.List()
	if len(defs) != 3 {
		t.Fatalf("List: %d defs, want 3", len(defs))
	}
	for i, want := range []string{"c", "a", "b"} {
		if defs[i].Name != want {
			t.Errorf("List[%d] = %q, want %q", i, defs[i].Name, want)
		}
	}
}
