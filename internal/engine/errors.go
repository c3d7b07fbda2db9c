package engine

import (
	"fmt"
	"strings"

	"github.com/weftworks/weft/internal/ir"
)

// SpecError reports a malformed sync at registration. Registration is
// all-or-nothing: a sync that produces a SpecError is never partially
// indexed.
type SpecError struct {
	SyncName string
	Issues   []ir.SpecIssue
}

func (e *SpecError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("sync %q: invalid", e.SyncName)
	}
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Error()
	}
	return fmt.Sprintf("sync %q: %s", e.SyncName, strings.Join(msgs, "; "))
}

// ErrDuplicateSync is wrapped by the SpecError returned when a name is
// already registered. Re-registration is rejected rather than replaced to
// avoid racing in-flight partial matches.
func duplicateSyncError(name string) *SpecError {
	return &SpecError{
		SyncName: name,
		Issues: []ir.SpecIssue{{
			Field:   "name",
			Message: "a sync with this name is already registered",
		}},
	}
}

// QueryError reports a failed or timed-out where-clause query. It is
// scoped to the one candidate being evaluated: the candidate is dropped
// and logged, sibling candidates are unaffected.
type QueryError struct {
	SyncName string
	Concept  string
	Relation string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("sync %q: where query %s/%s: %v", e.SyncName, e.Concept, e.Relation, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// DispatchError reports a then clause that could not be rendered into an
// invocation, usually an unknown concept or action when a catalog is
// configured. Sibling then clauses from the same firing still proceed.
type DispatchError struct {
	SyncName string
	Concept  string
	Action   string
	Reason   string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("sync %q: then %s/%s: %s", e.SyncName, e.Concept, e.Action, e.Reason)
}

// CycleError reports a refused firing: the same (sync, binding hash) pair
// already fired within this flow, so firing again would loop.
type CycleError struct {
	SyncName    string
	Flow        string
	BindingHash string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("sync %q: cycle in flow %s (binding %.12s already fired)", e.SyncName, e.Flow, e.BindingHash)
}

// StepsExceededError terminates a flow that fired more syncs than its
// quota allows. Unlike a cycle, which refuses one firing, quota exhaustion
// stops the whole flow.
type StepsExceededError struct {
	Flow  string
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded max steps: %d > %d", e.Flow, e.Steps, e.Limit)
}
