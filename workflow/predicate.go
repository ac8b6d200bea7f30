package workflow

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Op is a numeric comparison operator in a loop predicate.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Predicate is a single comparison over the merged numeric values of a
// phase iteration, e.g. "criticalCount == 0". Fields absent from the
// value map read as zero, so a predicate over a count a worker never
// reported compares against 0 rather than erroring.
type Predicate struct {
	Field string  `json:"field" yaml:"field"`
	Op    Op      `json:"op" yaml:"op"`
	Value float64 `json:"value" yaml:"value"`
}

// ParsePredicate parses the textual form "<field> <op> <number>".
// Whitespace around tokens is ignored.
func ParsePredicate(s string) (Predicate, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Predicate{}, fmt.Errorf("workflow: predicate %q: want \"field op number\"", s)
	}
	op := Op(fields[1])
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
	default:
		return Predicate{}, fmt.Errorf("workflow: predicate %q: unknown operator %q", s, fields[1])
	}
	v, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Predicate{}, fmt.Errorf("workflow: predicate %q: %w", s, err)
	}
	return Predicate{Field: fields[0], Op: op, Value: v}, nil
}

// MustParsePredicate is ParsePredicate for static predicates; it panics
// on malformed input.
func MustParsePredicate(s string) Predicate {
	p, err := ParsePredicate(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval reports whether the predicate holds over values. A missing field
// evaluates as zero.
func (p Predicate) Eval(values map[string]float64) bool {
	v := values[p.Field]
	switch p.Op {
	case OpEq:
		return v == p.Value
	case OpNe:
		return v != p.Value
	case OpLt:
		return v < p.Value
	case OpLe:
		return v <= p.Value
	case OpGt:
		return v > p.Value
	case OpGe:
		return v >= p.Value
	}
	return false
}

// IsZero reports whether the predicate is unset.
func (p Predicate) IsZero() bool { return p.Field == "" && p.Op == "" }

// String renders the canonical textual form.
func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %s", p.Field, p.Op, strconv.FormatFloat(p.Value, 'f', -1, 64))
}

// UnmarshalYAML accepts the textual form ("criticalCount == 0") or the
// expanded mapping form.
func (p *Predicate) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		parsed, err := ParsePredicate(s)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}
	type plain Predicate
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*p = Predicate(raw)
	return nil
}

// MarshalYAML emits the textual form.
func (p Predicate) MarshalYAML() (any, error) {
	if p.IsZero() {
		return "", nil
	}
	return p.String(), nil
}
