package harness

import "github.com/weftworks/weft/internal/ir"

// StepRecord captures what one step produced.
type StepRecord struct {
	// Kind is "completion" or "availability".
	Kind string `json:"kind"`

	// Completion echoes the delivered completion for completion steps.
	Completion *ir.Completion `json:"completion,omitempty"`

	// Concept and Available echo availability steps.
	Concept   string `json:"concept,omitempty"`
	Available bool   `json:"available,omitempty"`

	// Emitted lists the invocations this step caused, in dispatch order.
	Emitted []ir.Invocation `json:"emitted,omitempty"`
}

// Result is the outcome of running one scenario.
type Result struct {
	Scenario string
	Steps    []StepRecord

	// Emitted is every invocation across all steps, in order.
	Emitted []ir.Invocation

	// Failures holds assertion failure messages. Empty means the
	// scenario passed.
	Failures []string
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}
