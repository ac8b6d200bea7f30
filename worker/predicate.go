package worker

import (
	"github.com/xraph/foreman/event"
)

// TriggerPredicate is a declarative condition over an incoming event that,
// when matched, selects this worker for invocation without explicit user
// naming. Predicates are pure data; the trigger package compiles and
// evaluates them.
//
// All set conditions must hold for the predicate to match. Matches across
// workers are independent: several workers may react to one event.
type TriggerPredicate struct {
	// Kinds restricts matching to the listed event kinds. Empty matches
	// any kind.
	Kinds []event.Kind `json:"kinds,omitempty" yaml:"kinds,omitempty"`

	// PathGlob is a doublestar glob matched against the file path of
	// FileChanged events, e.g. "**/*.go".
	PathGlob string `json:"path,omitempty" yaml:"path,omitempty"`

	// Pattern is a regular expression matched against the event text:
	// the error message, command text, or file path.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Confirm requires an approval before the triggered invocation runs.
	// Without an approver the match is logged and skipped.
	Confirm bool `json:"confirm,omitempty" yaml:"confirm,omitempty"`
}

// AppliesTo reports whether the predicate's kind filter admits the kind.
func (p *TriggerPredicate) AppliesTo(kind event.Kind) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
