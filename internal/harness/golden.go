package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/weftworks/weft/internal/ir"
)

// Snapshot renders a result as canonical JSON for golden comparison.
// Content-addressed identifiers are elided: they are opaque hashes that
// would churn the golden on any payload edit without adding review
// value. Seq numbers and payloads pin the trace down completely.
func Snapshot(result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, step := range result.Steps {
		entry := map[string]any{
			"kind": step.Kind,
		}
		if step.Completion != nil {
			entry["concept"] = step.Completion.Concept
			entry["action"] = step.Completion.Action
			entry["variant"] = step.Completion.Variant
			entry["flow"] = step.Completion.Flow
		}
		if step.Kind == "availability" {
			entry["concept"] = step.Concept
			entry["available"] = step.Available
		}
		emitted := make([]any, len(step.Emitted))
		for j, inv := range step.Emitted {
			emitted[j] = map[string]any{
				"concept": inv.Concept,
				"action":  inv.Action,
				"flow":    inv.Flow,
				"seq":     inv.Seq,
				"input":   inv.Input,
			}
		}
		entry["emitted"] = emitted
		steps[i] = entry
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario": result.Scenario,
		"steps":    steps,
	})
}

// RunWithGolden executes a scenario, fails the test on any assertion
// failure, and compares the trace snapshot against
// testdata/golden/{scenario.Name}.golden. Regenerate goldens with
// go test ./internal/harness -update.
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, failure := range result.Failures {
		t.Error(failure)
	}

	snapshot, err := Snapshot(result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
}
