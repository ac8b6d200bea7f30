package worker

import (
	"encoding/json"
)

// Status is the result classification a worker reports.
type Status string

const (
	// StatusSuccess means the worker did its job.
	StatusSuccess Status = "success"
	// StatusFailure means the worker could not do its job.
	StatusFailure Status = "failure"
	// StatusNeedsFollowUp means the worker finished but another worker
	// should react to its output.
	StatusNeedsFollowUp Status = "needs_follow_up"
	// StatusSkipped marks an invocation record the engine never
	// dispatched: short-circuited by an earlier failure or filtered out
	// by focus. Workers never return it.
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is one a worker may legally return.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusNeedsFollowUp
}

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Diagnostic is one structured finding reported by a worker: an issue, a
// smell, a test failure. Validation-loop predicates and run reports
// consume diagnostics in aggregate.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
	Detail   string   `json:"detail,omitempty"`
}

// Outcome is what a worker invocation produces.
type Outcome struct {
	// Status classifies the result.
	Status Status `json:"status"`

	// Fields are the values this worker publishes to the context bus,
	// keyed by field name. Values are JSON.
	Fields map[string]json.RawMessage `json:"fields,omitempty"`

	// Diagnostics are the structured findings of this invocation.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// Values are named numeric diagnostics consumed by validation-loop
	// predicates, e.g. {"criticalCount": 2}. Derived severity counts are
	// computed automatically; explicit values take precedence.
	Values map[string]float64 `json:"values,omitempty"`

	// Error describes the classified failure for StatusFailure outcomes
	// produced by the engine (timeout, invocation error, panic).
	Error string `json:"error,omitempty"`
}

// Success builds a success outcome with no fields.
func Success() *Outcome {
	return &Outcome{Status: StatusSuccess}
}

// Failed builds a failure outcome carrying the error text.
func Failed(err error) *Outcome {
	o := &Outcome{Status: StatusFailure}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// SetField JSON-encodes v under the given field name. It panics if v
// cannot be marshaled (programming error).
func (o *Outcome) SetField(name string, v any) *Outcome {
	data, err := json.Marshal(v)
	if err != nil {
		panic("worker: encode outcome field " + name + ": " + err.Error())
	}
	if o.Fields == nil {
		o.Fields = make(map[string]json.RawMessage)
	}
	o.Fields[name] = data
	return o
}

// AddDiagnostic appends a diagnostic finding.
func (o *Outcome) AddDiagnostic(sev Severity, code, message string) *Outcome {
	o.Diagnostics = append(o.Diagnostics, Diagnostic{Severity: sev, Code: code, Message: message})
	return o
}

// SetValue records a named numeric diagnostic.
func (o *Outcome) SetValue(name string, v float64) *Outcome {
	if o.Values == nil {
		o.Values = make(map[string]float64)
	}
	o.Values[name] = v
	return o
}

// CountBySeverity tallies diagnostics per severity.
func CountBySeverity(diags []Diagnostic) map[Severity]int {
	counts := make(map[Severity]int)
	for _, d := range diags {
		counts[d.Severity]++
	}
	return counts
}

// MergeValues computes the numeric view of a set of outcomes in the given
// order: derived severity counts (criticalCount, highCount, mediumCount,
// lowCount, infoCount, totalCount) first, then each outcome's explicit
// Values overlaid in order, so later workers take precedence.
func MergeValues(outcomes []*Outcome) map[string]float64 {
	var diags []Diagnostic
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		diags = append(diags, o.Diagnostics...)
	}
	counts := CountBySeverity(diags)

	merged := map[string]float64{
		"criticalCount": float64(counts[SeverityCritical]),
		"highCount":     float64(counts[SeverityHigh]),
		"mediumCount":   float64(counts[SeverityMedium]),
		"lowCount":      float64(counts[SeverityLow]),
		"infoCount":     float64(counts[SeverityInfo]),
		"totalCount":    float64(len(diags)),
	}
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		for k, v := range o.Values {
			merged[k] = v
		}
	}
	return merged
}
