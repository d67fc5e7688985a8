package harness

import "github.com/roach88/solforge/internal/svm"

// TraceEvent is the outcome of one flow step.
type TraceEvent struct {
	Step   int         `json:"step"`
	Invoke string      `json:"invoke"`
	Slot   uint64      `json:"slot"`
	Units  uint64      `json:"units"`
	Events []svm.Event `json:"events,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per flow step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Keys maps every label the scenario used to its address.
	Keys map[string]string `json:"keys,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends the outcome of a flow step.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}

// EventCount counts events named name across the trace.
func (r *Result) EventCount(name string) int {
	n := 0
	for _, e := range r.Trace {
		for _, ev := range e.Events {
			if ev.Name == name {
				n++
			}
		}
	}
	return n
}
