// Package ir defines the canonical data model shared by every weft package:
// the constrained value types that flow through action payloads, the sync
// AST (when/where/then clauses), and the invocation/completion records the
// engine consumes and emits.
//
// This package imports nothing internal. Every other internal package
// imports ir, which keeps it the foundational layer with no cycles.
//
// Design constraints:
//   - No float types anywhere - binding hashes and firing idempotency
//     require deterministic serialization, so numbers are always int64
//   - Ordering uses logical sequence numbers (seq), never wall clocks;
//     the Timestamp on Completion is externally supplied metadata only
//   - All JSON tags use snake_case
package ir
