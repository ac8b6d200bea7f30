package trigger

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/worker"
)

// Match pairs a worker selected for invocation with the predicate that
// selected it. The predicate travels with the match so the reactor can
// honor its Confirm flag.
type Match struct {
	WorkerID  string
	Predicate worker.TriggerPredicate
}

// Evaluator matches incoming events against the trigger predicates of
// every registered worker. Compiled patterns are cached across
// evaluations; the evaluator is safe for concurrent use.
type Evaluator struct {
	workers *worker.Registry

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewEvaluator creates an evaluator over the given worker registry.
func NewEvaluator(workers *worker.Registry) *Evaluator {
	return &Evaluator{
		workers:  workers,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Evaluate returns the workers that should fire for the event, in
// registration order. Matches are independent: several workers may react
// to the same event, and a worker matches at most once per event even
// when several of its predicates hold.
//
// An ExplicitCommand event naming a worker bypasses predicate matching
// and resolves the id directly; an unresolvable id is
// worker.ErrUnknownWorker. A command naming a workflow produces no
// matches here; the reactor routes it to the workflow registry instead.
// A command naming neither falls through to predicate matching like any
// other event, so pattern-triggered workers can react to free-form
// commands.
func (e *Evaluator) Evaluate(evt *event.Event) ([]Match, error) {
	if evt.Kind == event.KindExplicitCommand {
		var p event.ExplicitCommandPayload
		if err := evt.Decode(&p); err != nil {
			return nil, err
		}
		switch {
		case p.Worker != "":
			if _, err := e.workers.Lookup(p.Worker); err != nil {
				return nil, err
			}
			return []Match{{WorkerID: p.Worker}}, nil
		case p.Workflow != "":
			return nil, nil
		}
	}

	var matches []Match
	for _, desc := range e.workers.List() {
		for i := range desc.Triggers {
			ok, err := e.matches(desc.ID, &desc.Triggers[i], evt)
			if err != nil {
				return nil, err
			}
			if ok {
				matches = append(matches, Match{WorkerID: desc.ID, Predicate: desc.Triggers[i]})
				break
			}
		}
	}
	return matches, nil
}

// matches evaluates a single predicate against the event. Every set
// condition must hold.
func (e *Evaluator) matches(workerID string, p *worker.TriggerPredicate, evt *event.Event) (bool, error) {
	if !p.AppliesTo(evt.Kind) {
		return false, nil
	}
	if p.PathGlob != "" {
		path := evt.Path()
		if path == "" {
			return false, nil
		}
		ok, err := doublestar.Match(p.PathGlob, path)
		if err != nil {
			return false, fmt.Errorf("worker %s: path glob %q: %w", workerID, p.PathGlob, err)
		}
		if !ok {
			return false, nil
		}
	}
	if p.Pattern != "" {
		re, err := e.pattern(p.Pattern)
		if err != nil {
			return false, fmt.Errorf("worker %s: trigger pattern %q: %w", workerID, p.Pattern, err)
		}
		if !re.MatchString(evt.Text()) {
			return false, nil
		}
	}
	return true, nil
}

// pattern returns the compiled regexp for the expression, compiling and
// caching it on first use.
func (e *Evaluator) pattern(expr string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	e.patterns[expr] = re
	return re, nil
}
