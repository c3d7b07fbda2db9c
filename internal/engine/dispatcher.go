package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/weftworks/weft/internal/ir"
)

// renderThen renders the sync's then clauses, in declared order, into
// concrete invocations by substituting bound variables into each clause's
// field expressions. A clause whose target is unknown to the catalog, or
// whose expressions cannot be resolved, yields a DispatchError; sibling
// clauses still render.
func (e *Engine) renderThen(s *ir.Sync, env ir.Record, flow string) ([]ir.Invocation, []*DispatchError) {
	var (
		invs     []ir.Invocation
		dispErrs []*DispatchError
	)
	for _, then := range s.Then {
		if err := e.checkTarget(then.Concept, then.Action); err != nil {
			dispErrs = append(dispErrs, &DispatchError{
				SyncName: s.Name, Concept: then.Concept, Action: then.Action, Reason: err.Error(),
			})
			continue
		}
		input, err := renderArgs(then.Args, env)
		if err != nil {
			dispErrs = append(dispErrs, &DispatchError{
				SyncName: s.Name, Concept: then.Concept, Action: then.Action, Reason: err.Error(),
			})
			continue
		}
		seq := e.clock.Next()
		invs = append(invs, ir.Invocation{
			ID:      ir.MustInvocationID(flow, then.Concept, then.Action, input, seq),
			Concept: then.Concept,
			Action:  then.Action,
			Input:   input,
			Flow:    flow,
			Seq:     seq,
		})
	}
	return invs, dispErrs
}

// checkTarget validates a then target against the concept catalog, when
// one is configured. Without a catalog any target is accepted.
func (e *Engine) checkTarget(concept, action string) error {
	if e.catalog == nil {
		return nil
	}
	spec, ok := e.catalog[concept]
	if !ok {
		return fmt.Errorf("unknown concept %q", concept)
	}
	if !spec.HasAction(action) {
		return fmt.Errorf("concept %q has no action %q", concept, action)
	}
	return nil
}

// fire executes one satisfied (sync, flow, bindings) candidate: it checks
// the at-most-once key against the ledger, refuses cycles, renders the
// then clauses, records the firing atomically with its invocations, and
// routes each invocation to the caller or, when the target concept is
// unavailable, to the pending queue.
//
// Returns the invocations the caller should dispatch now. A duplicate
// delivery returns nothing and no error.
func (e *Engine) fire(ctx context.Context, s *ir.Sync, env ir.Record, comp *ir.Completion) ([]ir.Invocation, error) {
	bindingHash, err := ir.BindingHash(env)
	if err != nil {
		return nil, fmt.Errorf("hash bindings: %w", err)
	}

	fired, err := e.store.HasFiring(ctx, s.Name, comp.Flow, comp.ID, bindingHash)
	if err != nil {
		return nil, fmt.Errorf("check firing: %w", err)
	}
	if fired {
		e.log.Debug("duplicate delivery, firing suppressed",
			"sync", s.Name, "flow", comp.Flow, "completion", comp.ID)
		return nil, nil
	}

	if e.cycles.WouldCycle(comp.Flow, s.Name, bindingHash) {
		return nil, &CycleError{SyncName: s.Name, Flow: comp.Flow, BindingHash: bindingHash}
	}
	if err := e.quota.step(comp.Flow); err != nil {
		return nil, err
	}

	invs, dispErrs := e.renderThen(s, env, comp.Flow)
	for _, derr := range dispErrs {
		e.log.Warn("then clause dropped", "error", derr)
	}

	firing := ir.Firing{
		SyncName:     s.Name,
		Flow:         comp.Flow,
		CompletionID: comp.ID,
		BindingHash:  bindingHash,
		Seq:          e.clock.Next(),
	}
	_, inserted, err := e.store.RecordFiring(ctx, firing, invs)
	if err != nil {
		return nil, fmt.Errorf("record firing: %w", err)
	}
	if !inserted {
		// A concurrent duplicate won the race; its invocations stand.
		return nil, nil
	}
	e.cycles.Record(comp.Flow, s.Name, bindingHash)

	emit := make([]ir.Invocation, 0, len(invs))
	for _, inv := range invs {
		if !e.pending.Available(inv.Concept) {
			e.pending.Enqueue(ir.PendingInvocation{
				PendingID:  uuid.Must(uuid.NewV7()).String(),
				Invocation: inv,
				SyncName:   s.Name,
				Flow:       comp.Flow,
				Seq:        inv.Seq,
			})
			e.log.Info("invocation parked, target unavailable",
				"sync", s.Name, "concept", inv.Concept, "action", inv.Action, "flow", comp.Flow)
			continue
		}
		e.conflicts.Observe(inv)
		emit = append(emit, inv)
	}

	e.log.Info("sync fired",
		"sync", s.Name, "flow", comp.Flow, "completion", comp.ID,
		"invocations", len(invs), "parked", len(invs)-len(emit))
	return emit, nil
}
