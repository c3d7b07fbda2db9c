package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/weftworks/weft/internal/ir"
	"github.com/weftworks/weft/internal/store"
)

// AssertionError describes one failed assertion with enough context to
// debug it without re-running the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Emitted  []ir.Invocation
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual:   %s\n", e.Actual)
	if len(e.Emitted) > 0 {
		fmt.Fprintf(&buf, "  emitted:\n")
		for i, inv := range e.Emitted {
			fmt.Fprintf(&buf, "    [%d] %s.%s %v\n", i, inv.Concept, inv.Action, inv.Input)
		}
	}
	return buf.String()
}

func evaluateAssertions(ctx context.Context, st *store.Store, result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertEmittedContains:
			err = assertEmittedContains(result.Emitted, a)
		case AssertEmittedOrder:
			err = assertEmittedOrder(result.Emitted, a)
		case AssertEmittedCount:
			err = assertEmittedCount(result.Emitted, a)
		case AssertFiringCount:
			err = assertFiringCount(ctx, st, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func assertEmittedContains(emitted []ir.Invocation, a Assertion) error {
	want, err := ir.RecordFromGo(a.Input)
	if err != nil {
		return fmt.Errorf("emitted_contains: bad input: %w", err)
	}
	for _, inv := range emitted {
		if inv.Concept == a.Concept && inv.Action == a.Action && recordSubset(want, inv.Input) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEmittedContains,
		Expected: fmt.Sprintf("%s.%s with input %v", a.Concept, a.Action, a.Input),
		Actual:   "not emitted",
		Emitted:  emitted,
	}
}

// assertEmittedOrder checks relative order; intervening invocations are
// allowed.
func assertEmittedOrder(emitted []ir.Invocation, a Assertion) error {
	pos := 0
	for _, inv := range emitted {
		if pos < len(a.Actions) && inv.Concept+"."+inv.Action == a.Actions[pos] {
			pos++
		}
	}
	if pos == len(a.Actions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEmittedOrder,
		Expected: fmt.Sprintf("order %v", a.Actions),
		Actual:   fmt.Sprintf("matched %d of %d", pos, len(a.Actions)),
		Emitted:  emitted,
	}
}

func assertEmittedCount(emitted []ir.Invocation, a Assertion) error {
	count := 0
	for _, inv := range emitted {
		if inv.Concept+"."+inv.Action == a.Action || inv.Action == a.Action {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEmittedCount,
		Expected: fmt.Sprintf("%s emitted %d time(s)", a.Action, a.Count),
		Actual:   fmt.Sprintf("emitted %d time(s)", count),
		Emitted:  emitted,
	}
}

func assertFiringCount(ctx context.Context, st *store.Store, a Assertion) error {
	firings, err := st.ReadFirings(ctx, a.Flow)
	if err != nil {
		return fmt.Errorf("firing_count: %w", err)
	}
	count := 0
	for _, f := range firings {
		if f.SyncName == a.Sync {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertFiringCount,
		Expected: fmt.Sprintf("sync %q fired %d time(s) in flow %q", a.Sync, a.Count, a.Flow),
		Actual:   fmt.Sprintf("fired %d time(s)", count),
	}
}

// recordSubset reports whether every field of want appears in got with
// an equal value.
func recordSubset(want, got ir.Record) bool {
	for k, v := range want {
		gv, ok := got[k]
		if !ok || !ir.Equal(v, gv) {
			return false
		}
	}
	return true
}
