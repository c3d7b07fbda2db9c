package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/weftworks/weft/internal/ir"
)

// compileSyncs parses the top-level syncs struct, one sync per field, in
// declaration order. Declaration order matters: it is the registration
// order, which breaks priority ties between candidates.
func compileSyncs(v cue.Value) ([]ir.Sync, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var syncs []ir.Sync
	for iter.Next() {
		name := strings.Trim(iter.Label(), `"`)
		s, err := compileSync(name, iter.Value())
		if err != nil {
			return nil, err
		}
		syncs = append(syncs, *s)
	}
	return syncs, nil
}

func compileSync(name string, v cue.Value) (*ir.Sync, error) {
	s := &ir.Sync{Name: name}

	annVal := v.LookupPath(cue.ParsePath("annotations"))
	if annVal.Exists() {
		anns, err := stringList(annVal, fieldOf(name, "annotations"))
		if err != nil {
			return nil, err
		}
		s.Annotations = anns
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return nil, &CompileError{
			Field:   fieldOf(name, "when"),
			Message: "when clause list is required",
			Pos:     v.Pos(),
		}
	}
	whens, err := listItems(whenVal, fieldOf(name, "when"))
	if err != nil {
		return nil, err
	}
	for i, item := range whens {
		clause, err := compileWhen(item, fmt.Sprintf("%s.when[%d]", name, i))
		if err != nil {
			return nil, err
		}
		s.When = append(s.When, clause)
	}

	whereVal := v.LookupPath(cue.ParsePath("where"))
	if whereVal.Exists() {
		wheres, err := listItems(whereVal, fieldOf(name, "where"))
		if err != nil {
			return nil, err
		}
		for i, item := range wheres {
			clause, err := compileWhere(item, fmt.Sprintf("%s.where[%d]", name, i))
			if err != nil {
				return nil, err
			}
			s.Where = append(s.Where, clause)
		}
	}

	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return nil, &CompileError{
			Field:   fieldOf(name, "then"),
			Message: "then clause list is required",
			Pos:     v.Pos(),
		}
	}
	thens, err := listItems(thenVal, fieldOf(name, "then"))
	if err != nil {
		return nil, err
	}
	for i, item := range thens {
		clause, err := compileThen(item, fmt.Sprintf("%s.then[%d]", name, i))
		if err != nil {
			return nil, err
		}
		s.Then = append(s.Then, clause)
	}

	return s, nil
}

func compileWhen(v cue.Value, field string) (ir.WhenClause, error) {
	var clause ir.WhenClause
	var err error

	if clause.Concept, err = requiredString(v, "concept", field); err != nil {
		return clause, err
	}
	if clause.Action, err = requiredString(v, "action", field); err != nil {
		return clause, err
	}
	if clause.Variant, err = requiredString(v, "variant", field); err != nil {
		return clause, err
	}
	if clause.Input, err = stringMap(v, "input", field); err != nil {
		return clause, err
	}
	if clause.Output, err = stringMap(v, "output", field); err != nil {
		return clause, err
	}
	return clause, nil
}

func compileWhere(v cue.Value, field string) (ir.WhereClause, error) {
	var clause ir.WhereClause
	var err error

	if clause.Concept, err = requiredString(v, "concept", field); err != nil {
		return clause, err
	}
	if clause.Relation, err = requiredString(v, "relation", field); err != nil {
		return clause, err
	}
	if clause.Args, err = stringMap(v, "args", field); err != nil {
		return clause, err
	}
	if clause.Bindings, err = stringMap(v, "bind", field); err != nil {
		return clause, err
	}
	return clause, nil
}

func compileThen(v cue.Value, field string) (ir.ThenClause, error) {
	var clause ir.ThenClause
	var err error

	if clause.Concept, err = requiredString(v, "concept", field); err != nil {
		return clause, err
	}
	if clause.Action, err = requiredString(v, "action", field); err != nil {
		return clause, err
	}
	if clause.Args, err = stringMap(v, "args", field); err != nil {
		return clause, err
	}
	return clause, nil
}

func fieldOf(syncName, field string) string {
	return syncName + "." + field
}

// requiredString reads a mandatory string field of a struct value.
func requiredString(v cue.Value, key, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field + "." + key,
			Message: fmt.Sprintf("%s is required", key),
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field + "." + key,
			Message: "must be a string",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// stringMap reads an optional struct field whose values are all strings,
// e.g. binding maps and argument expressions.
func stringMap(v cue.Value, key, field string) (map[string]string, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return nil, nil
	}

	iter, err := fv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	out := make(map[string]string)
	for iter.Next() {
		name := strings.Trim(iter.Label(), `"`)
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.%s.%s", field, key, name),
				Message: "must be a string expression",
				Pos:     iter.Value().Pos(),
			}
		}
		out[name] = s
	}
	return out, nil
}

// stringList reads a list of strings.
func stringList(v cue.Value, field string) ([]string, error) {
	items, err := listItems(v, field)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := item.String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "must be a string",
				Pos:     item.Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// listItems materializes a CUE list value.
func listItems(v cue.Value, field string) ([]cue.Value, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "must be a list",
			Pos:     v.Pos(),
		}
	}
	var items []cue.Value
	for iter.Next() {
		items = append(items, iter.Value())
	}
	return items, nil
}
