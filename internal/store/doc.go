// Package store provides the SQLite-backed firing ledger for the weft
// engine: an append-only log of invocations, completions, and sync
// firings.
//
// The ledger is what makes dispatch at-most-once. Each firing carries the
// (sync_name, flow, completion_id, binding_hash) key under a UNIQUE
// constraint; a redelivered completion re-derives the same key and the
// insert is a no-op, so no second set of invocations is ever produced.
//
// Invariants:
//   - All ordering uses seq INTEGER (logical clock), never timestamps.
//     Completion timestamps are stored as opaque metadata.
//   - Flow reads order by seq ASC, id ASC for deterministic traces.
//   - Payloads are stored as RFC 8785 canonical JSON text.
//
// Database configuration: WAL mode for concurrent reads, NORMAL
// synchronous, 5s busy timeout, foreign keys on.
package store
