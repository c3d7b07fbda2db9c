// Package harness runs conformance scenarios against the sync engine.
//
// A scenario is a YAML file that names the definition files to load,
// seeds concept state into relations, delivers a sequence of completions
// and availability changes, and asserts on the invocations the engine
// emits.
//
// # Scenario Format
//
//	name: order-notify
//	description: "placing an order sends a confirmation email"
//	defs:
//	  - defs.cue
//	state:
//	  - relation: stock
//	    rows:
//	      - {sku: "sku-9", quantity: 3}
//	steps:
//	  - complete:
//	      concept: orders
//	      action: place
//	      variant: ok
//	      output: {id: "o-1"}
//	      flow: flow-1
//	  - availability:
//	      concept: email
//	      available: true
//	assertions:
//	  - type: emitted_contains
//	    concept: email
//	    action: send
//	    input: {order: "o-1"}
//
// Definition paths are relative to the scenario file. Relations seeded
// under state back the engine's where-clause queries.
//
// # Assertion Types
//
//   - emitted_contains: an invocation with the given concept, action,
//     and input subset was emitted
//   - emitted_order: the named actions ("concept.action") were emitted
//     in the given relative order
//   - emitted_count: the named action was emitted exactly count times
//   - firing_count: the named sync fired exactly count times in a flow
//
// # Determinism
//
// Every scenario runs against a fresh in-memory ledger with a logical
// clock starting at zero and a fixed flow token source, so the same
// scenario always produces the same trace. Golden snapshots elide
// content-addressed identifiers, which keeps the files reviewable; seq
// numbers and payloads pin the trace down completely.
package harness
