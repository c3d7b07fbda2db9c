package compiler

import (
	"fmt"
	"strings"

	"github.com/weftworks/weft/internal/ir"
)

// Validation error codes. Concept catalog defects are E10x, sync defects
// E11x. Codes are stable; tooling keys off them.
const (
	ErrConceptURIEmpty    = "E101" // concept URI is empty
	ErrConceptNoActions   = "E102" // at least one action required
	ErrActionNoVariants   = "E103" // action must declare outcome variants
	ErrDuplicateVariant   = "E105" // duplicate variant within an action
	ErrMissingSyncClause  = "E110" // missing when or then clause
	ErrInvalidWhenClause  = "E111" // malformed when clause
	ErrInvalidWhereClause = "E112" // malformed where clause
	ErrInvalidThenClause  = "E113" // malformed then clause
	ErrUnboundVariable    = "E114" // expression references an unbound variable
	ErrSyncNameEmpty      = "E115" // sync name is empty
	ErrUnknownTrigger     = "E116" // when clause references a concept/action/variant absent from the catalog
)

// ValidationError is one schema defect found in compiled definitions.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateSync checks a compiled sync, returning every defect rather than
// failing fast. The structural rules match what the engine enforces at
// registration; validating here gives file/position-adjacent errors at
// build time instead of registration time.
func ValidateSync(s *ir.Sync) []ValidationError {
	var errs []ValidationError
	for _, issue := range s.Validate() {
		errs = append(errs, ValidationError{
			Field:   issue.Field,
			Message: issue.Message,
			Code:    codeFor(issue.Field),
		})
	}
	return errs
}

// codeFor maps a defect's field path to its error code.
func codeFor(field string) string {
	switch {
	case field == "name":
		return ErrSyncNameEmpty
	case field == "when" || field == "then":
		return ErrMissingSyncClause
	case strings.Contains(field, ".args."):
		return ErrUnboundVariable
	case strings.HasPrefix(field, "when"):
		return ErrInvalidWhenClause
	case strings.HasPrefix(field, "where"):
		return ErrInvalidWhereClause
	case strings.HasPrefix(field, "then"):
		return ErrInvalidThenClause
	default:
		return ErrMissingSyncClause
	}
}

// ValidateConcept checks a catalog entry.
func ValidateConcept(spec *ir.ConceptSpec) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(spec.URI) == "" {
		errs = append(errs, ValidationError{
			Field:   "uri",
			Message: "concept URI is required",
			Code:    ErrConceptURIEmpty,
		})
	}
	if len(spec.Actions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "actions",
			Message: "at least one action is required",
			Code:    ErrConceptNoActions,
		})
	}

	for action, variants := range spec.Actions {
		field := fmt.Sprintf("actions.%s", action)
		if len(variants) == 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("action %q must declare at least one outcome variant", action),
				Code:    ErrActionNoVariants,
			})
		}
		seen := make(map[string]bool, len(variants))
		for _, variant := range variants {
			if seen[variant] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("duplicate variant %q", variant),
					Code:    ErrDuplicateVariant,
				})
			}
			seen[variant] = true
		}
	}

	return errs
}

// ValidateDefinitions checks everything in a compiled set, including the
// cross checks only possible with a catalog present: every when clause's
// trigger must name a cataloged concept, action, and variant.
func ValidateDefinitions(defs *Definitions) []ValidationError {
	var errs []ValidationError

	catalog := make(map[string]*ir.ConceptSpec, len(defs.Concepts))
	for i := range defs.Concepts {
		spec := &defs.Concepts[i]
		errs = append(errs, ValidateConcept(spec)...)
		catalog[spec.URI] = spec
	}

	for i := range defs.Syncs {
		s := &defs.Syncs[i]
		errs = append(errs, ValidateSync(s)...)
		if len(catalog) > 0 {
			errs = append(errs, validateTriggers(s, catalog)...)
		}
	}

	return errs
}

func validateTriggers(s *ir.Sync, catalog map[string]*ir.ConceptSpec) []ValidationError {
	var errs []ValidationError
	for i, w := range s.When {
		field := fmt.Sprintf("%s.when[%d]", s.Name, i)
		spec, ok := catalog[w.Concept]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown concept %q", w.Concept),
				Code:    ErrUnknownTrigger,
			})
			continue
		}
		variants, ok := spec.Actions[w.Action]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("concept %q has no action %q", w.Concept, w.Action),
				Code:    ErrUnknownTrigger,
			})
			continue
		}
		if w.Variant == ir.VariantAny {
			continue
		}
		found := false
		for _, v := range variants {
			if v == w.Variant {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("action %s/%s has no variant %q", w.Concept, w.Action, w.Variant),
				Code:    ErrUnknownTrigger,
			})
		}
	}
	return errs
}
