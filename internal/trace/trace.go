// Package trace records the ordered decision steps a pipeline stage takes,
// for audit and debugging. Steps are append-only within a run; consumers may
// rely on structure (stage name, op name) and ordering, never on wording.
package trace

import (
	"fmt"
	"strings"
	"time"
)

// Step is one recorded decision: what the stage observed, why it chose the
// operation it chose, and the operation's input snapshot.
type Step struct {
	Seq         int            `json:"seq"`
	Observation string         `json:"observation"`
	Rationale   string         `json:"rationale"`
	Op          string         `json:"op"`
	Input       map[string]any `json:"input,omitempty"`
	At          time.Time      `json:"at"`
}

// Trace is the append-only log for one stage run. Not safe for concurrent
// writers; each stage run owns its own trace.
type Trace struct {
	Stage string `json:"stage"`
	Steps []Step `json:"steps"`

	now func() time.Time
}

func New(stage string) *Trace {
	return &Trace{Stage: stage, now: time.Now}
}

// NewAt is New with an injected clock, for tests.
func NewAt(stage string, now func() time.Time) *Trace {
	return &Trace{Stage: stage, now: now}
}

// Record appends one step and returns it. Seq is insertion order, starting at 1.
func (t *Trace) Record(observation, rationale, op string, input map[string]any) Step {
	step := Step{
		Seq:         len(t.Steps) + 1,
		Observation: observation,
		Rationale:   rationale,
		Op:          op,
		Input:       input,
		At:          t.now(),
	}
	t.Steps = append(t.Steps, step)
	return step
}

// Reset clears the trace for a new run.
func (t *Trace) Reset() {
	t.Steps = t.Steps[:0]
}

// Ops returns the operation names in recorded order.
func (t *Trace) Ops() []string {
	ops := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		ops[i] = s.Op
	}
	return ops
}

// String renders the trace for human display.
func (t *Trace) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", t.Stage)
	for _, s := range t.Steps {
		fmt.Fprintf(&b, "--- Step %d ---\n", s.Seq)
		fmt.Fprintf(&b, "Observation: %s\n", s.Observation)
		fmt.Fprintf(&b, "Rationale: %s\n", s.Rationale)
		fmt.Fprintf(&b, "Op: %s\n", s.Op)
	}
	return b.String()
}
