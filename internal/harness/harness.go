package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/weftworks/weft/internal/compiler"
	"github.com/weftworks/weft/internal/engine"
	"github.com/weftworks/weft/internal/ir"
	"github.com/weftworks/weft/internal/relsql"
	"github.com/weftworks/weft/internal/store"
)

// seqFlows hands out "flow-0001", "flow-0002", ... after any fixed
// tokens are spent. Scenarios get stable flow tokens without having to
// list one per root completion.
type seqFlows struct {
	fixed []string
	next  atomic.Int64
}

func (g *seqFlows) NewFlow() string {
	n := g.next.Add(1)
	if int(n) <= len(g.fixed) {
		return g.fixed[n-1]
	}
	return fmt.Sprintf("flow-%04d", n-int64(len(g.fixed)))
}

// Run executes a scenario against a fresh in-memory ledger and returns
// the result. Assertion failures land in Result.Failures; infrastructure
// problems (bad definitions, unseedable state) return an error.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer st.Close()

	defs, err := loadDefs(scenario.Defs)
	if err != nil {
		return nil, err
	}
	if errs := compiler.ValidateDefinitions(defs); len(errs) > 0 {
		return nil, fmt.Errorf("invalid definitions: %w", errs[0])
	}

	if err := seedState(st, scenario.State); err != nil {
		return nil, err
	}

	queriers := relsql.NewQuerier(st.DB())
	eng := engine.New(st,
		engine.WithLogger(slog.New(slog.DiscardHandler)),
		engine.WithClock(engine.NewClockAt(0)),
		engine.WithFlowGenerator(&seqFlows{fixed: scenario.Flows}),
		engine.WithCatalog(defs.Concepts),
		engine.WithQueriers(func(string) engine.Querier { return queriers }),
	)
	for _, s := range defs.Syncs {
		if err := eng.RegisterSync(s); err != nil {
			return nil, fmt.Errorf("register sync %q: %w", s.Name, err)
		}
	}

	ctx := context.Background()
	result := &Result{Scenario: scenario.Name}

	for i, step := range scenario.Steps {
		record, err := executeStep(ctx, eng, i, step)
		if err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, *record)
		result.Emitted = append(result.Emitted, record.Emitted...)
	}

	result.Failures = evaluateAssertions(ctx, st, result, scenario.Assertions)
	return result, nil
}

func executeStep(ctx context.Context, eng *engine.Engine, index int, step Step) (*StepRecord, error) {
	switch {
	case step.Complete != nil:
		comp, err := buildCompletion(step.Complete)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", index, err)
		}
		emitted, err := eng.OnCompletion(ctx, comp)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", index, err)
		}
		return &StepRecord{Kind: "completion", Completion: &comp, Emitted: emitted}, nil

	case step.Availability != nil:
		released := eng.OnAvailabilityChange(step.Availability.Concept, step.Availability.Available)
		return &StepRecord{
			Kind:      "availability",
			Concept:   step.Availability.Concept,
			Available: step.Availability.Available,
			Emitted:   released,
		}, nil
	}
	return nil, fmt.Errorf("steps[%d]: empty step", index)
}

func buildCompletion(step *CompletionStep) (ir.Completion, error) {
	input, err := ir.RecordFromGo(step.Input)
	if err != nil {
		return ir.Completion{}, fmt.Errorf("input: %w", err)
	}
	output, err := ir.RecordFromGo(step.Output)
	if err != nil {
		return ir.Completion{}, fmt.Errorf("output: %w", err)
	}
	return ir.Completion{
		Concept: step.Concept,
		Action:  step.Action,
		Variant: step.Variant,
		Input:   input,
		Output:  output,
		Flow:    step.Flow,
	}, nil
}

func loadDefs(paths []string) (*compiler.Definitions, error) {
	all := make([]*compiler.Definitions, 0, len(paths))
	for _, path := range paths {
		defs, err := compiler.CompileFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, defs)
	}
	return compiler.Merge(all...)
}

// seedState creates and fills the relations backing where queries.
// Column order is the sorted key set of the first row.
func seedState(st *store.Store, seeds []StateSeed) error {
	for _, seed := range seeds {
		columns := make([]string, 0, len(seed.Rows[0]))
		for k := range seed.Rows[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)

		if err := relsql.CreateRelation(st.DB(), seed.Relation, columns); err != nil {
			return fmt.Errorf("relation %q: %w", seed.Relation, err)
		}
		for i, row := range seed.Rows {
			rec, err := ir.RecordFromGo(row)
			if err != nil {
				return fmt.Errorf("relation %q row %d: %w", seed.Relation, i, err)
			}
			if err := relsql.Insert(st.DB(), seed.Relation, rec); err != nil {
				return fmt.Errorf("relation %q row %d: %w", seed.Relation, i, err)
			}
		}
	}
	return nil
}
