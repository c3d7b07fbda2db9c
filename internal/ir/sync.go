package ir

import (
	"fmt"
	"strings"
)

// VariantAny is the explicit wildcard variant. A when clause only matches
// any outcome when it declares this; an unnamed variant never matches.
const VariantAny = "*"

// AnnotationEager marks a sync whose candidates are evaluated, and whose
// invocations are emitted, ahead of non-eager syncs triggered by the same
// completion.
const AnnotationEager = "eager"

// Sync is a declarative reactive rule: when a set of action completions
// with particular variants has been observed within one flow, and the
// where predicates hold over the bound values, invoke the then actions.
// A Sync is immutable once registered.
type Sync struct {
	Name        string        `json:"name"`
	Annotations []string      `json:"annotations,omitempty"`
	When        []WhenClause  `json:"when"`
	Where       []WhereClause `json:"where,omitempty"`
	Then        []ThenClause  `json:"then"`
}

// WhenClause names one completion pattern that contributes to triggering
// the sync. Input and Output map variable names to payload field names.
type WhenClause struct {
	Concept string            `json:"concept"`
	Action  string            `json:"action"`
	Variant string            `json:"variant"`
	Input   map[string]string `json:"input,omitempty"`
	Output  map[string]string `json:"output,omitempty"`
}

// TriggerKey is the (concept, action) index key for candidate lookup.
func (c WhenClause) TriggerKey() string {
	return c.Concept + "\x00" + c.Action
}

// WhereClause names a relation query against the owning concept. Args map
// argument names to expressions ("bound.var" references or literals);
// Bindings map variable names to fields of each returned row, extending
// the binding environment one row at a time.
type WhereClause struct {
	Concept  string            `json:"concept"`
	Relation string            `json:"relation"`
	Args     map[string]string `json:"args,omitempty"`
	Bindings map[string]string `json:"bindings,omitempty"`
}

// ThenClause names one effect action. Args map input field names to
// expressions built from bound variables.
type ThenClause struct {
	Concept string            `json:"concept"`
	Action  string            `json:"action"`
	Args    map[string]string `json:"args,omitempty"`
}

// BoundPrefix marks an expression that references a bound variable rather
// than a literal, e.g. "bound.order_id".
const BoundPrefix = "bound."

// BoundVar extracts the variable name from a bound-reference expression.
// Returns ("", false) for literals.
func BoundVar(expr string) (string, bool) {
	if strings.HasPrefix(expr, BoundPrefix) {
		return expr[len(BoundPrefix):], true
	}
	return "", false
}

// Annotated reports whether the sync carries the given annotation tag.
func (s *Sync) Annotated(tag string) bool {
	for _, a := range s.Annotations {
		if a == tag {
			return true
		}
	}
	return false
}

// Eager reports whether the sync is annotated for priority dispatch.
func (s *Sync) Eager() bool { return s.Annotated(AnnotationEager) }

// SpecIssue is one structural defect found while validating a sync.
type SpecIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e SpecIssue) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the sync's structure: non-empty when and then clauses,
// well-formed field references, and then-args that only reference
// variables bound by some when or where clause. All issues are returned,
// not just the first.
func (s *Sync) Validate() []SpecIssue {
	var issues []SpecIssue

	if strings.TrimSpace(s.Name) == "" {
		issues = append(issues, SpecIssue{Field: "name", Message: "sync name is required"})
	}

	if len(s.When) == 0 {
		issues = append(issues, SpecIssue{Field: "when", Message: "at least one when clause is required"})
	}
	if len(s.Then) == 0 {
		issues = append(issues, SpecIssue{Field: "then", Message: "at least one then clause is required"})
	}

	bound := make(map[string]bool)
	for i, w := range s.When {
		field := fmt.Sprintf("when[%d]", i)
		if w.Concept == "" {
			issues = append(issues, SpecIssue{Field: field + ".concept", Message: "concept URI is required"})
		}
		if w.Action == "" {
			issues = append(issues, SpecIssue{Field: field + ".action", Message: "action name is required"})
		}
		if w.Variant == "" {
			issues = append(issues, SpecIssue{Field: field + ".variant", Message: `variant is required (use "*" to match any outcome explicitly)`})
		}
		for v := range w.Input {
			bound[v] = true
		}
		for v := range w.Output {
			bound[v] = true
		}
	}

	for i, w := range s.Where {
		field := fmt.Sprintf("where[%d]", i)
		if w.Concept == "" {
			issues = append(issues, SpecIssue{Field: field + ".concept", Message: "concept URI is required"})
		}
		if w.Relation == "" {
			issues = append(issues, SpecIssue{Field: field + ".relation", Message: "relation name is required"})
		}
		for arg, expr := range w.Args {
			if v, ok := BoundVar(expr); ok && !bound[v] {
				issues = append(issues, SpecIssue{
					Field:   fmt.Sprintf("%s.args.%s", field, arg),
					Message: fmt.Sprintf("unresolvable field reference: variable %q is not bound by any earlier clause", v),
				})
			}
		}
		// Where clauses may introduce new variables for later clauses.
		for v := range w.Bindings {
			bound[v] = true
		}
	}

	for i, t := range s.Then {
		field := fmt.Sprintf("then[%d]", i)
		if t.Concept == "" {
			issues = append(issues, SpecIssue{Field: field + ".concept", Message: "concept URI is required"})
		}
		if t.Action == "" {
			issues = append(issues, SpecIssue{Field: field + ".action", Message: "action name is required"})
		}
		for arg, expr := range t.Args {
			if v, ok := BoundVar(expr); ok && !bound[v] {
				issues = append(issues, SpecIssue{
					Field:   fmt.Sprintf("%s.args.%s", field, arg),
					Message: fmt.Sprintf("unresolvable field reference: variable %q is not bound by any when or where clause", v),
				})
			}
		}
	}

	return issues
}
