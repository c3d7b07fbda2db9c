package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/weftworks/weft/internal/ir"
)

// compileConcepts parses the top-level concepts struct: one catalog entry
// per field, keyed by concept URI.
func compileConcepts(v cue.Value) ([]ir.ConceptSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var concepts []ir.ConceptSpec
	for iter.Next() {
		uri := strings.Trim(iter.Label(), `"`)
		spec, err := compileConcept(uri, iter.Value())
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, *spec)
	}
	return concepts, nil
}

func compileConcept(uri string, v cue.Value) (*ir.ConceptSpec, error) {
	spec := &ir.ConceptSpec{URI: uri, Actions: make(map[string][]string)}

	keyVal := v.LookupPath(cue.ParsePath("entity_key"))
	if keyVal.Exists() {
		key, err := keyVal.String()
		if err != nil {
			return nil, &CompileError{
				Field:   uri + ".entity_key",
				Message: "must be a string field name",
				Pos:     keyVal.Pos(),
			}
		}
		spec.EntityKey = key
	}

	actionsVal := v.LookupPath(cue.ParsePath("actions"))
	if !actionsVal.Exists() {
		return nil, &CompileError{
			Field:   uri + ".actions",
			Message: "actions struct is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := actionsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		action := strings.Trim(iter.Label(), `"`)
		variants, err := stringList(iter.Value(), fmt.Sprintf("%s.actions.%s", uri, action))
		if err != nil {
			return nil, err
		}
		spec.Actions[action] = variants
	}

	return spec, nil
}
