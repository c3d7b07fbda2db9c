package engine

import (
	"github.com/weftworks/weft/internal/ir"
)

// matchClause checks one when clause against a completion and, on match,
// builds the clause's variable bindings by zipping its input/output maps
// against the completion's actual payloads.
//
// Matching is variant-sensitive: the clause's variant must equal the
// completion's, unless the clause declares the explicit wildcard "*".
// A referenced payload field that is absent makes the clause
// unsatisfiable for this completion, which drops the candidate rather
// than erroring.
func matchClause(clause ir.WhenClause, comp *ir.Completion) (ir.Record, bool) {
	if clause.Concept != comp.Concept || clause.Action != comp.Action {
		return nil, false
	}
	if clause.Variant != ir.VariantAny && clause.Variant != comp.Variant {
		return nil, false
	}

	bindings := make(ir.Record, len(clause.Input)+len(clause.Output))
	for variable, field := range clause.Input {
		v, ok := comp.Input[field]
		if !ok {
			return nil, false
		}
		bindings[variable] = v
	}
	for variable, field := range clause.Output {
		v, ok := comp.Output[field]
		if !ok {
			return nil, false
		}
		bindings[variable] = v
	}
	return bindings, true
}

// mergeBindings merges b into a copy of a. A variable bound in both must
// agree on its value; disagreement means the candidate binding set is
// unsatisfiable and reported as !ok.
func mergeBindings(a, b ir.Record) (ir.Record, bool) {
	merged := make(ir.Record, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		if existing, bound := merged[k]; bound && !ir.Equal(existing, v) {
			return nil, false
		}
		merged[k] = v
	}
	return merged, true
}
