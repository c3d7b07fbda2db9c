package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/weftworks/weft/internal/ir"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ReadInvocation fetches one invocation by ID.
func (s *Store) ReadInvocation(ctx context.Context, id string) (ir.Invocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, concept, action, input, flow, seq
		FROM invocations WHERE id = ?
	`, id)
	return scanInvocationRow(row)
}

// ReadCompletion fetches one completion by ID.
func (s *Store) ReadCompletion(ctx context.Context, id string) (ir.Completion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, concept, action, input, variant, output, flow, timestamp, seq
		FROM completions WHERE id = ?
	`, id)
	return scanCompletionRow(row)
}

// ReadFlow returns all invocations and completions for a flow, ordered by
// seq ASC, id ASC for deterministic traces.
func (s *Store) ReadFlow(ctx context.Context, flow string) ([]ir.Invocation, []ir.Completion, error) {
	invs, err := s.readFlowInvocations(ctx, flow)
	if err != nil {
		return nil, nil, err
	}
	comps, err := s.readFlowCompletions(ctx, flow)
	if err != nil {
		return nil, nil, err
	}
	return invs, comps, nil
}

func (s *Store) readFlowInvocations(ctx context.Context, flow string) ([]ir.Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, concept, action, input, flow, seq
		FROM invocations WHERE flow = ?
		ORDER BY seq ASC, id ASC
	`, flow)
	if err != nil {
		return nil, fmt.Errorf("read flow invocations: %w", err)
	}
	defer rows.Close()

	var invs []ir.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

func (s *Store) readFlowCompletions(ctx context.Context, flow string) ([]ir.Completion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, concept, action, input, variant, output, flow, timestamp, seq
		FROM completions WHERE flow = ?
		ORDER BY seq ASC, id ASC
	`, flow)
	if err != nil {
		return nil, fmt.Errorf("read flow completions: %w", err)
	}
	defer rows.Close()

	var comps []ir.Completion
	for rows.Next() {
		comp, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		comps = append(comps, comp)
	}
	return comps, rows.Err()
}

// ReadFirings returns all firings for a flow in seq order.
func (s *Store) ReadFirings(ctx context.Context, flow string) ([]ir.Firing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sync_name, flow, completion_id, binding_hash, seq
		FROM firings WHERE flow = ?
		ORDER BY seq ASC, id ASC
	`, flow)
	if err != nil {
		return nil, fmt.Errorf("read firings: %w", err)
	}
	defer rows.Close()

	var firings []ir.Firing
	for rows.Next() {
		var f ir.Firing
		if err := rows.Scan(&f.SyncName, &f.Flow, &f.CompletionID, &f.BindingHash, &f.Seq); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		firings = append(firings, f)
	}
	return firings, rows.Err()
}

// ReadTriggered returns the invocations generated by firings for a
// completion, in firing seq then then-clause position order.
func (s *Store) ReadTriggered(ctx context.Context, completionID string) ([]ir.Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.concept, i.action, i.input, i.flow, i.seq
		FROM firings f
		JOIN firing_invocations fi ON fi.firing_id = f.id
		JOIN invocations i ON i.id = fi.invocation_id
		WHERE f.completion_id = ?
		ORDER BY f.seq ASC, fi.position ASC
	`, completionID)
	if err != nil {
		return nil, fmt.Errorf("read triggered: %w", err)
	}
	defer rows.Close()

	var invs []ir.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// ReadTriggeredBySync narrows ReadTriggered to firings of one sync.
func (s *Store) ReadTriggeredBySync(ctx context.Context, completionID, syncName string) ([]ir.Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.concept, i.action, i.input, i.flow, i.seq
		FROM firings f
		JOIN firing_invocations fi ON fi.firing_id = f.id
		JOIN invocations i ON i.id = fi.invocation_id
		WHERE f.completion_id = ? AND f.sync_name = ?
		ORDER BY f.seq ASC, fi.position ASC
	`, completionID, syncName)
	if err != nil {
		return nil, fmt.Errorf("read triggered by sync: %w", err)
	}
	defer rows.Close()

	var invs []ir.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

func scanInvocation(rows *sql.Rows) (ir.Invocation, error) {
	var inv ir.Invocation
	var inputJSON string
	if err := rows.Scan(&inv.ID, &inv.Concept, &inv.Action, &inputJSON, &inv.Flow, &inv.Seq); err != nil {
		return ir.Invocation{}, fmt.Errorf("scan invocation: %w", err)
	}
	input, err := unmarshalPayload(inputJSON)
	if err != nil {
		return ir.Invocation{}, err
	}
	inv.Input = input
	return inv, nil
}

func scanInvocationRow(row *sql.Row) (ir.Invocation, error) {
	var inv ir.Invocation
	var inputJSON string
	err := row.Scan(&inv.ID, &inv.Concept, &inv.Action, &inputJSON, &inv.Flow, &inv.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Invocation{}, ErrNotFound
	}
	if err != nil {
		return ir.Invocation{}, fmt.Errorf("scan invocation: %w", err)
	}
	input, err := unmarshalPayload(inputJSON)
	if err != nil {
		return ir.Invocation{}, err
	}
	inv.Input = input
	return inv, nil
}

func scanCompletion(rows *sql.Rows) (ir.Completion, error) {
	var comp ir.Completion
	var inputJSON, outputJSON string
	if err := rows.Scan(&comp.ID, &comp.Concept, &comp.Action, &inputJSON, &comp.Variant,
		&outputJSON, &comp.Flow, &comp.Timestamp, &comp.Seq); err != nil {
		return ir.Completion{}, fmt.Errorf("scan completion: %w", err)
	}
	return finishCompletion(comp, inputJSON, outputJSON)
}

func scanCompletionRow(row *sql.Row) (ir.Completion, error) {
	var comp ir.Completion
	var inputJSON, outputJSON string
	err := row.Scan(&comp.ID, &comp.Concept, &comp.Action, &inputJSON, &comp.Variant,
		&outputJSON, &comp.Flow, &comp.Timestamp, &comp.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Completion{}, ErrNotFound
	}
	if err != nil {
		return ir.Completion{}, fmt.Errorf("scan completion: %w", err)
	}
	return finishCompletion(comp, inputJSON, outputJSON)
}

func finishCompletion(comp ir.Completion, inputJSON, outputJSON string) (ir.Completion, error) {
	input, err := unmarshalPayload(inputJSON)
	if err != nil {
		return ir.Completion{}, err
	}
	output, err := unmarshalPayload(outputJSON)
	if err != nil {
		return ir.Completion{}, err
	}
	comp.Input = input
	comp.Output = output
	return comp, nil
}
