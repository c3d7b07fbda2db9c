package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/ir"
	"github.com/weftworks/weft/internal/store"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "weft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return New(st, opts...)
}

func completion(concept, action, variant, flow string, output ir.Record) ir.Completion {
	return ir.Completion{
		Concept: concept,
		Action:  action,
		Variant: variant,
		Output:  output,
		Flow:    flow,
	}
}

func simpleSync(name string) ir.Sync {
	return ir.Sync{
		Name: name,
		When: []ir.WhenClause{{Concept: "C", Action: "act", Variant: "ok"}},
		Then: []ir.ThenClause{{Concept: "D", Action: "do"}},
	}
}

func staticQueriers(m map[string]Querier) QuerierResolver {
	return func(concept string) Querier { return m[concept] }
}

func fixedRows(rows ...ir.Record) Querier {
	return QuerierFunc(func(ctx context.Context, relation string, args ir.Record) ([]ir.Record, error) {
		return rows, nil
	})
}

func TestRegisterSync_SpecErrors(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		sync ir.Sync
	}{
		{"empty when", ir.Sync{Name: "s", Then: []ir.ThenClause{{Concept: "D", Action: "do"}}}},
		{"empty then", ir.Sync{Name: "s", When: []ir.WhenClause{{Concept: "C", Action: "a", Variant: "ok"}}}},
		{"unbound then variable", ir.Sync{
			Name: "s",
			When: []ir.WhenClause{{Concept: "C", Action: "a", Variant: "ok"}},
			Then: []ir.ThenClause{{Concept: "D", Action: "do", Args: map[string]string{"x": "bound.nope"}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.RegisterSync(tt.sync)
			var specErr *SpecError
			require.ErrorAs(t, err, &specErr)
			assert.NotEmpty(t, specErr.Issues)
		})
	}
}

func TestRegisterSync_DuplicateNameRejected(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.RegisterSync(simpleSync("s")))
	err := e.RegisterSync(simpleSync("s"))

	var specErr *SpecError
	require.ErrorAs(t, err, &specErr)
	assert.Contains(t, specErr.Error(), "already registered")
}

// The worked example: a single-clause sync fires once per completion and
// exactly once across redeliveries.
func TestOnCompletion_FiresAndIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(simpleSync("S")))

	comp := completion("C", "act", "ok", "f1", nil)
	invs, err := e.OnCompletion(ctx, comp)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, "D", invs[0].Concept)
	assert.Equal(t, "do", invs[0].Action)
	assert.Equal(t, "f1", invs[0].Flow)

	// Redelivering the identical completion yields no new invocations.
	again, err := e.OnCompletion(ctx, comp)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestOnCompletion_ThenOrdering(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "s",
		When: []ir.WhenClause{{Concept: "C", Action: "act", Variant: "ok"}},
		Then: []ir.ThenClause{
			{Concept: "A", Action: "first"},
			{Concept: "B", Action: "second"},
		},
	}))

	invs, err := e.OnCompletion(context.Background(), completion("C", "act", "ok", "f1", nil))
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "A", invs[0].Concept)
	assert.Equal(t, "B", invs[1].Concept)
	assert.Less(t, invs[0].Seq, invs[1].Seq)
}

func TestOnCompletion_VariantSensitive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(simpleSync("s")))

	invs, err := e.OnCompletion(ctx, completion("C", "act", "error", "f1", nil))
	require.NoError(t, err)
	assert.Empty(t, invs, "non-matching variant must produce no candidates")
}

func TestOnCompletion_WildcardVariant(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "any",
		When: []ir.WhenClause{{Concept: "C", Action: "act", Variant: ir.VariantAny}},
		Then: []ir.ThenClause{{Concept: "D", Action: "do"}},
	}))

	invs, err := e.OnCompletion(ctx, completion("C", "act", "error", "f1", nil))
	require.NoError(t, err)
	assert.Len(t, invs, 1, `"*" matches any outcome explicitly`)
}

func TestOnCompletion_BindingsSubstitutedIntoThen(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "reserve",
		When: []ir.WhenClause{{
			Concept: "urn:weft/Order", Action: "place", Variant: "ok",
			Output: map[string]string{"order_id": "id"},
		}},
		Then: []ir.ThenClause{{
			Concept: "urn:weft/Inventory", Action: "reserve",
			Args: map[string]string{"order": "bound.order_id", "mode": "strict"},
		}},
	}))

	invs, err := e.OnCompletion(context.Background(),
		completion("urn:weft/Order", "place", "ok", "f1", ir.Record{"id": ir.String("o-42")}))
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.True(t, ir.Equal(ir.String("o-42"), invs[0].Input["order"]))
	assert.True(t, ir.Equal(ir.String("strict"), invs[0].Input["mode"]), "non-bound args pass through as literals")
}

func TestOnCompletion_MissingBindingFieldDropsCandidate(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "s",
		When: []ir.WhenClause{{
			Concept: "C", Action: "act", Variant: "ok",
			Output: map[string]string{"x": "missing_field"},
		}},
		Then: []ir.ThenClause{{Concept: "D", Action: "do"}},
	}))

	invs, err := e.OnCompletion(context.Background(), completion("C", "act", "ok", "f1", ir.Record{}))
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestOnCompletion_ConjunctionEitherOrder(t *testing.T) {
	conj := ir.Sync{
		Name: "both",
		When: []ir.WhenClause{
			{Concept: "C", Action: "a", Variant: "ok", Output: map[string]string{"x": "x"}},
			{Concept: "C", Action: "b", Variant: "ok", Output: map[string]string{"y": "y"}},
		},
		Then: []ir.ThenClause{{Concept: "D", Action: "do",
			Args: map[string]string{"x": "bound.x", "y": "bound.y"}}},
	}

	first := completion("C", "a", "ok", "f1", ir.Record{"x": ir.Int(1)})
	second := completion("C", "b", "ok", "f1", ir.Record{"y": ir.Int(2)})

	for name, order := range map[string][]ir.Completion{
		"declared order": {first, second},
		"reversed order": {second, first},
	} {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t)
			ctx := context.Background()
			require.NoError(t, e.RegisterSync(conj))

			invs, err := e.OnCompletion(ctx, order[0])
			require.NoError(t, err)
			assert.Empty(t, invs, "one clause satisfied must not fire")

			invs, err = e.OnCompletion(ctx, order[1])
			require.NoError(t, err)
			require.Len(t, invs, 1)
			assert.True(t, ir.Equal(ir.Int(1), invs[0].Input["x"]))
			assert.True(t, ir.Equal(ir.Int(2), invs[0].Input["y"]))
		})
	}
}

func TestOnCompletion_ConjunctionRequiresSameFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "both",
		When: []ir.WhenClause{
			{Concept: "C", Action: "a", Variant: "ok"},
			{Concept: "C", Action: "b", Variant: "ok"},
		},
		Then: []ir.ThenClause{{Concept: "D", Action: "do"}},
	}))

	invs, err := e.OnCompletion(ctx, completion("C", "a", "ok", "f1", nil))
	require.NoError(t, err)
	assert.Empty(t, invs)

	invs, err = e.OnCompletion(ctx, completion("C", "b", "ok", "f2", nil))
	require.NoError(t, err)
	assert.Empty(t, invs, "clauses satisfied in different flows must not fire")
}

func TestOnCompletion_ConjunctionBindingDisagreementDrops(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "agree",
		When: []ir.WhenClause{
			{Concept: "C", Action: "a", Variant: "ok", Output: map[string]string{"v": "v"}},
			{Concept: "C", Action: "b", Variant: "ok", Output: map[string]string{"v": "v"}},
		},
		Then: []ir.ThenClause{{Concept: "D", Action: "do"}},
	}))

	_, err := e.OnCompletion(ctx, completion("C", "a", "ok", "f1", ir.Record{"v": ir.Int(1)}))
	require.NoError(t, err)

	invs, err := e.OnCompletion(ctx, completion("C", "b", "ok", "f1", ir.Record{"v": ir.Int(2)}))
	require.NoError(t, err)
	assert.Empty(t, invs, "a variable bound twice must agree")
}

func TestOnCompletion_RootTriggerGetsFreshFlow(t *testing.T) {
	e := newTestEngine(t, WithFlowGenerator(NewFixedGenerator("flow-a")))

	require.NoError(t, e.RegisterSync(simpleSync("s")))

	invs, err := e.OnCompletion(context.Background(), completion("C", "act", "ok", "", nil))
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, "flow-a", invs[0].Flow, "invocations inherit the root trigger's fresh flow")
}

func TestOnCompletion_WhereFiltering(t *testing.T) {
	whereSync := ir.Sync{
		Name: "gated",
		When: []ir.WhenClause{{
			Concept: "C", Action: "act", Variant: "ok",
			Output: map[string]string{"order": "id"},
		}},
		Where: []ir.WhereClause{{
			Concept: "urn:weft/Stock", Relation: "available",
			Args:     map[string]string{"order": "bound.order"},
			Bindings: map[string]string{"sku": "sku"},
		}},
		Then: []ir.ThenClause{{Concept: "D", Action: "do",
			Args: map[string]string{"sku": "bound.sku"}}},
	}
	comp := completion("C", "act", "ok", "f1", ir.Record{"id": ir.String("o-1")})

	t.Run("zero rows blocks firing", func(t *testing.T) {
		e := newTestEngine(t, WithQueriers(staticQueriers(map[string]Querier{
			"urn:weft/Stock": fixedRows(),
		})))
		require.NoError(t, e.RegisterSync(whereSync))

		invs, err := e.OnCompletion(context.Background(), comp)
		require.NoError(t, err)
		assert.Empty(t, invs)
	})

	t.Run("n rows produce n extensions", func(t *testing.T) {
		e := newTestEngine(t, WithQueriers(staticQueriers(map[string]Querier{
			"urn:weft/Stock": fixedRows(
				ir.Record{"sku": ir.String("sku-1")},
				ir.Record{"sku": ir.String("sku-2")},
			),
		})))
		require.NoError(t, e.RegisterSync(whereSync))

		invs, err := e.OnCompletion(context.Background(), comp)
		require.NoError(t, err)
		require.Len(t, invs, 2)
		assert.True(t, ir.Equal(ir.String("sku-1"), invs[0].Input["sku"]))
		assert.True(t, ir.Equal(ir.String("sku-2"), invs[1].Input["sku"]))
	})
}

func TestOnCompletion_QueryErrorDropsOnlyThatCandidate(t *testing.T) {
	e := newTestEngine(t, WithQueriers(staticQueriers(map[string]Querier{
		"urn:weft/Broken": QuerierFunc(func(ctx context.Context, relation string, args ir.Record) ([]ir.Record, error) {
			return nil, errors.New("concept unreachable")
		}),
	})))
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "gated",
		When: []ir.WhenClause{{Concept: "C", Action: "act", Variant: "ok"}},
		Where: []ir.WhereClause{{
			Concept: "urn:weft/Broken", Relation: "r",
		}},
		Then: []ir.ThenClause{{Concept: "D", Action: "do"}},
	}))
	require.NoError(t, e.RegisterSync(simpleSync("plain")))

	invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f1", nil))
	require.NoError(t, err, "a query error is scoped to its candidate, never fatal")
	require.Len(t, invs, 1, "the sibling sync still fires")
	assert.Equal(t, "D", invs[0].Concept)
}

func TestOnCompletion_QueryTimeoutDropsCandidate(t *testing.T) {
	blocked := QuerierFunc(func(ctx context.Context, relation string, args ir.Record) ([]ir.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newTestEngine(t,
		WithQueryTimeout(1),
		WithQueriers(staticQueriers(map[string]Querier{"urn:weft/Slow": blocked})))

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name:  "slow",
		When:  []ir.WhenClause{{Concept: "C", Action: "act", Variant: "ok"}},
		Where: []ir.WhereClause{{Concept: "urn:weft/Slow", Relation: "r"}},
		Then:  []ir.ThenClause{{Concept: "D", Action: "do"}},
	}))

	invs, err := e.OnCompletion(context.Background(), completion("C", "act", "ok", "f1", nil))
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestOnCompletion_EagerSyncsFireFirst(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	lazy := simpleSync("lazy")
	lazy.Then = []ir.ThenClause{{Concept: "Lazy", Action: "do"}}
	require.NoError(t, e.RegisterSync(lazy))

	eager := simpleSync("eager")
	eager.Annotations = []string{ir.AnnotationEager}
	eager.Then = []ir.ThenClause{{Concept: "Eager", Action: "do"}}
	require.NoError(t, e.RegisterSync(eager))

	invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f1", nil))
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "Eager", invs[0].Concept, "eager annotation raises priority despite later registration")
	assert.Equal(t, "Lazy", invs[1].Concept)
}

func TestAvailabilityRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(simpleSync("s")))

	e.OnAvailabilityChange("D", false)

	invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f1", nil))
	require.NoError(t, err)
	assert.Empty(t, invs, "invocation for an unavailable target is parked, not returned")

	drained := e.OnAvailabilityChange("D", true)
	require.Len(t, drained, 1)
	assert.Equal(t, "D", drained[0].Concept)
	assert.Equal(t, "f1", drained[0].Flow)

	// Drain is destructive: a second toggle returns nothing.
	e.OnAvailabilityChange("D", false)
	assert.Empty(t, e.OnAvailabilityChange("D", true))
}

func TestAvailability_OtherThenClausesFireIndependently(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "split",
		When: []ir.WhenClause{{Concept: "C", Action: "act", Variant: "ok"}},
		Then: []ir.ThenClause{
			{Concept: "Down", Action: "do"},
			{Concept: "Up", Action: "do"},
		},
	}))
	e.OnAvailabilityChange("Down", false)

	invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f1", nil))
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, "Up", invs[0].Concept)

	drained := e.OnAvailabilityChange("Down", true)
	require.Len(t, drained, 1)
	assert.Equal(t, "Down", drained[0].Concept)
}

func TestQueueSync_ExplicitEnqueue(t *testing.T) {
	e := newTestEngine(t)

	pendingID, err := e.QueueSync(simpleSync("s"), ir.Record{}, "f1")
	require.NoError(t, err)
	assert.NotEmpty(t, pendingID)

	// Nothing drains while the target never transitioned; queued entries
	// surface on the next availability change for the target.
	drained := e.OnAvailabilityChange("D", true)
	require.Len(t, drained, 1)
	assert.Equal(t, "f1", drained[0].Flow)
}

func TestQueueSync_InvalidSync(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.QueueSync(ir.Sync{Name: "bad"}, ir.Record{}, "f1")
	var specErr *SpecError
	require.ErrorAs(t, err, &specErr)
}

func TestDrainConflicts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "mutate",
		When: []ir.WhenClause{{
			Concept: "C", Action: "act", Variant: "ok",
			Output: map[string]string{"entity": "id"},
		}},
		Then: []ir.ThenClause{{Concept: "D", Action: "update",
			Args: map[string]string{"id": "bound.entity"}}},
	}))

	for _, flow := range []string{"f1", "f2"} {
		_, err := e.OnCompletion(ctx, completion("C", "act", "ok", flow, ir.Record{"id": ir.String("e-1")}))
		require.NoError(t, err)
	}

	conflicts := e.DrainConflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "D", conflicts[0].Concept)
	assert.Equal(t, "e-1", conflicts[0].Entity)
	assert.ElementsMatch(t, []string{"f1", "f2"}, conflicts[0].Flows)
	assert.Len(t, conflicts[0].Invocations, 2)

	assert.Empty(t, e.DrainConflicts(), "the recency window is consumed by the scan")
}

func TestDrainConflicts_SingleFlowIsNotAConflict(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "mutate",
		When: []ir.WhenClause{{
			Concept: "C", Action: "act", Variant: "ok",
			Output: map[string]string{"entity": "id"},
		}},
		Then: []ir.ThenClause{{Concept: "D", Action: "update",
			Args: map[string]string{"id": "bound.entity"}}},
	}))

	for i := 0; i < 2; i++ {
		_, err := e.OnCompletion(ctx, ir.Completion{
			Concept: "C", Action: "act", Variant: "ok", Flow: "f1",
			Output: ir.Record{"id": ir.String("e-1"), "n": ir.Int(int64(i))},
		})
		require.NoError(t, err)
	}

	assert.Empty(t, e.DrainConflicts())
}

func TestUnregisterSync(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(simpleSync("s")))
	e.UnregisterSync("s")

	invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f1", nil))
	require.NoError(t, err)
	assert.Empty(t, invs)

	// The name is free again after unregistration.
	require.NoError(t, e.RegisterSync(simpleSync("s")))
}

func TestOnCompletion_CycleRefused(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(simpleSync("s")))

	invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f1", ir.Record{"n": ir.Int(1)}))
	require.NoError(t, err)
	require.Len(t, invs, 1)

	// A different completion in the same flow produces the same empty
	// binding environment: firing again would loop.
	invs, err = e.OnCompletion(ctx, completion("C", "act", "ok", "f1", ir.Record{"n": ir.Int(2)}))
	require.NoError(t, err)
	assert.Empty(t, invs)

	// Another flow is unaffected.
	invs, err = e.OnCompletion(ctx, completion("C", "act", "ok", "f2", ir.Record{"n": ir.Int(1)}))
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

func TestOnCompletion_MaxStepsTerminatesFlow(t *testing.T) {
	e := newTestEngine(t, WithMaxSteps(1))
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "s",
		When: []ir.WhenClause{{
			Concept: "C", Action: "act", Variant: "ok",
			Output: map[string]string{"n": "n"},
		}},
		Then: []ir.ThenClause{{Concept: "D", Action: "do",
			Args: map[string]string{"n": "bound.n"}}},
	}))

	_, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f1", ir.Record{"n": ir.Int(1)}))
	require.NoError(t, err)

	_, err = e.OnCompletion(ctx, completion("C", "act", "ok", "f1", ir.Record{"n": ir.Int(2)}))
	var stepsErr *StepsExceededError
	require.ErrorAs(t, err, &stepsErr)
	assert.Equal(t, "f1", stepsErr.Flow)

	// The engine keeps serving other flows.
	invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f2", ir.Record{"n": ir.Int(1)}))
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

func TestWithCatalog_UnknownTargetDropped(t *testing.T) {
	e := newTestEngine(t, WithCatalog([]ir.ConceptSpec{
		{URI: "D", Actions: map[string][]string{"do": {"ok"}}},
	}))
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(ir.Sync{
		Name: "s",
		When: []ir.WhenClause{{Concept: "C", Action: "act", Variant: "ok"}},
		Then: []ir.ThenClause{
			{Concept: "Unknown", Action: "do"},
			{Concept: "D", Action: "do"},
		},
	}))

	invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", "f1", nil))
	require.NoError(t, err, "a dispatch error is per invocation, not fatal")
	require.Len(t, invs, 1, "sibling then clauses still proceed")
	assert.Equal(t, "D", invs[0].Concept)
}

func TestEvaluateWhere_Tooling(t *testing.T) {
	e := newTestEngine(t, WithQueriers(staticQueriers(map[string]Querier{
		"S": fixedRows(ir.Record{"sku": ir.String("sku-9")}),
	})))

	results, err := e.EvaluateWhere(context.Background(),
		ir.Record{"order": ir.String("o-1")},
		[]ir.WhereClause{{
			Concept: "S", Relation: "stock",
			Args:     map[string]string{"order": "bound.order"},
			Bindings: map[string]string{"sku": "sku"},
		}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, ir.Equal(ir.String("sku-9"), results[0]["sku"]))
	assert.True(t, ir.Equal(ir.String("o-1"), results[0]["order"]), "initial bindings carry through")
}

func TestEvaluateWhere_NoQuerier(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.EvaluateWhere(context.Background(), ir.Record{},
		[]ir.WhereClause{{Concept: "S", Relation: "r"}})
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
}

func TestOnCompletion_ConcurrentFlows(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.RegisterSync(simpleSync("s")))

	const flows = 16
	results := make(chan int, flows)
	for i := 0; i < flows; i++ {
		go func(i int) {
			invs, err := e.OnCompletion(ctx, completion("C", "act", "ok", fmt.Sprintf("f%d", i), nil))
			if err != nil {
				results <- -1
				return
			}
			results <- len(invs)
		}(i)
	}
	for i := 0; i < flows; i++ {
		assert.Equal(t, 1, <-results)
	}
}
