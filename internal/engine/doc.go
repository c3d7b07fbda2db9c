// Package engine implements the sync engine: a registry of declarative
// when/where/then rules (syncs) matched against action completions.
//
// A completion arrives via Engine.OnCompletion. The registry yields the
// syncs whose when clauses reference that (concept, action); the matcher
// builds variable bindings from the completion's payloads; multi-clause
// syncs accumulate partial matches per flow in the correlator until every
// clause has been observed; the where evaluator extends or prunes the
// binding environment through external relation queries; and the
// dispatcher renders then clauses into invocations, recording an
// at-most-once firing key in the ledger so redelivered completions never
// fire twice.
//
// The engine never executes business logic. It emits invocations for the
// caller to deliver, parking them in the pending queue when the target
// concept is marked unavailable.
//
// Concurrency: OnCompletion is safe to call from many goroutines. The
// registry is read-mostly under an RWMutex, the partial-match table is
// sharded by flow token, and the pending queue is locked per target
// concept. No lock is held while a where query is in flight.
package engine
