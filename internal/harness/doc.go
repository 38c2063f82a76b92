// Package harness runs YAML concurrency scenarios against guarded stores.
//
// # Scenario Format
//
//	name: inventory_contended_reservation
//	description: "What this scenario validates"
//	kind: inventory            # counter | cache | inventory
//	backends: [mutex, mailbox] # optional, default: all
//	initial: { PROD-1: 3 }     # counter: integer, inventory: map
//	setup:                     # sequential, must succeed
//	  - op: initialize
//	    args: { product: PROD-2, qty: 1 }
//	concurrent:                # released together
//	  - op: reserve
//	    args: { product: PROD-1, qty: 2 }
//	    repeat: 2
//	then:                      # sequential, after the concurrent phase
//	  - op: stock
//	    args: { product: PROD-1 }
//	    expect: { case: Success, result: 1 }
//	assertions:
//	  - type: case_count
//	    op: reserve
//	    case: Success
//	    count: 1
//	  - type: final_state
//	    expect: { PROD-1: 1, PROD-2: 1 }
//
// Operations per kind:
//
//   - counter: increment, value
//   - cache: set {key, value}, get {key}, delete {key}, len
//   - inventory: initialize, reserve, restock {product, qty}; stock {product}
//
// # Assertion Types
//
//   - case_count: op finished with the given outcome case exactly count times
//   - result_in: every successful op returned one of results
//   - final_state: the store state after the last step equals expect
//
// # Checks Applied to Every Run
//
// Independently of assertions, every run records its history with logical
// stamps and replays it sequentially (package history). A run fails if the
// history is not linearizable, if the replayed state differs from the store's
// final state, or if backends disagree on the snapshot.
//
// # Golden Snapshots
//
// A snapshot holds outcome counts per op and case plus the final state, in
// canonical JSON. It deliberately excludes anything scheduling-dependent
// (stamps, ids, the order of outcomes), so both backends and every run of a
// well-formed scenario produce identical bytes.
package harness
