package store

import (
	"context"
	"fmt"

	"github.com/weftworks/weft/internal/ir"
)

// WriteInvocation inserts an invocation record. ON CONFLICT(id) DO NOTHING
// makes duplicate writes of the same content-addressed ID silent no-ops.
func (s *Store) WriteInvocation(ctx context.Context, inv ir.Invocation) error {
	inputJSON, err := marshalPayload(inv.Input)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations (id, concept, action, input, flow, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, inv.ID, inv.Concept, inv.Action, inputJSON, inv.Flow, inv.Seq)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}
	return nil
}

// WriteCompletion inserts a completion record idempotently.
func (s *Store) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	inputJSON, err := marshalPayload(comp.Input)
	if err != nil {
		return fmt.Errorf("write completion: %w", err)
	}
	outputJSON, err := marshalPayload(comp.Output)
	if err != nil {
		return fmt.Errorf("write completion: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completions (id, concept, action, input, variant, output, flow, timestamp, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, comp.ID, comp.Concept, comp.Action, inputJSON, comp.Variant, outputJSON,
		comp.Flow, comp.Timestamp, comp.Seq)
	if err != nil {
		return fmt.Errorf("write completion: %w", err)
	}
	return nil
}

// RecordFiring atomically claims the at-most-once key and writes the
// firing's generated invocations plus provenance rows in one transaction.
//
// Returns inserted=false when the (sync, flow, completion, binding) key
// already exists; in that case nothing else is written and the caller must
// not dispatch. Crash-safe: either the firing and all its invocations
// persist, or none do, so recovery never sees a claimed key with missing
// invocations.
func (s *Store) RecordFiring(ctx context.Context, firing ir.Firing, invs []ir.Invocation) (firingID int64, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("record firing: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO firings (sync_name, flow, completion_id, binding_hash, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sync_name, flow, completion_id, binding_hash) DO NOTHING
	`, firing.SyncName, firing.Flow, firing.CompletionID, firing.BindingHash, firing.Seq)
	if err != nil {
		return 0, false, fmt.Errorf("record firing: insert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("record firing: rows affected: %w", err)
	}

	if affected == 0 {
		// Key already claimed - fetch the existing ID for provenance reads.
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM firings
			WHERE sync_name = ? AND flow = ? AND completion_id = ? AND binding_hash = ?
		`, firing.SyncName, firing.Flow, firing.CompletionID, firing.BindingHash).Scan(&firingID)
		if err != nil {
			return 0, false, fmt.Errorf("record firing: select existing: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("record firing: commit existing: %w", err)
		}
		return firingID, false, nil
	}

	firingID, err = result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("record firing: last insert id: %w", err)
	}

	for i, inv := range invs {
		inputJSON, err := marshalPayload(inv.Input)
		if err != nil {
			return 0, false, fmt.Errorf("record firing: marshal input: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO invocations (id, concept, action, input, flow, seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, inv.ID, inv.Concept, inv.Action, inputJSON, inv.Flow, inv.Seq)
		if err != nil {
			return 0, false, fmt.Errorf("record firing: write invocation: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO firing_invocations (firing_id, invocation_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(firing_id, position) DO NOTHING
		`, firingID, inv.ID, i)
		if err != nil {
			return 0, false, fmt.Errorf("record firing: write provenance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("record firing: commit: %w", err)
	}
	return firingID, true, nil
}

// HasFiring reports whether the at-most-once key has been claimed.
func (s *Store) HasFiring(ctx context.Context, syncName, flow, completionID, bindingHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM firings
		WHERE sync_name = ? AND flow = ? AND completion_id = ? AND binding_hash = ?
	`, syncName, flow, completionID, bindingHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has firing: %w", err)
	}
	return count > 0, nil
}
