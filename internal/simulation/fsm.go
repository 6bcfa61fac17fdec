package simulation

import (
	"slices"

	"github.com/rendis/macta/pkg/schema"
)

// TransitionHook observes a case state transition at simulated time at.
type TransitionHook func(caseID string, from, to schema.CaseState, at float64)

// ValidCaseTransitions defines the allowed state transitions for a case.
// InService -> Queued moves a case on to the next station.
var ValidCaseTransitions = map[schema.CaseState][]schema.CaseState{
	schema.CaseArrived:   {schema.CaseQueued},
	schema.CaseQueued:    {schema.CaseInService},
	schema.CaseInService: {schema.CaseQueued, schema.CaseCompleted},
	schema.CaseCompleted: {},
}

type caseHookKey struct {
	from, to schema.CaseState
}

// caseFSM drives case transitions for one run. It is owned by a single
// event loop and is not safe for concurrent use.
type caseFSM struct {
	after map[caseHookKey][]TransitionHook
	all   []TransitionHook
}

func newCaseFSM() *caseFSM {
	return &caseFSM{after: make(map[caseHookKey][]TransitionHook)}
}

// onAfter registers a hook for one transition.
func (f *caseFSM) onAfter(from, to schema.CaseState, hook TransitionHook) {
	key := caseHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// observe registers a hook for every transition.
func (f *caseFSM) observe(hook TransitionHook) {
	f.all = append(f.all, hook)
}

func (f *caseFSM) transition(c *simCase, to schema.CaseState, at float64) error {
	from := c.state
	if !isValidCaseTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid case transition: %s -> %s", from, to).
			WithDetails(map[string]any{"case_id": c.id, "from": string(from), "to": string(to)})
	}
	c.state = to
	for _, hook := range f.after[caseHookKey{from, to}] {
		hook(c.id, from, to, at)
	}
	for _, hook := range f.all {
		hook(c.id, from, to, at)
	}
	return nil
}

func isValidCaseTransition(from, to schema.CaseState) bool {
	allowed, ok := ValidCaseTransitions[from]
	return ok && slices.Contains(allowed, to)
}
