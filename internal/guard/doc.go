// Package guard implements exclusive-access guarded stores.
//
// A guarded store owns a piece of mutable state and serializes every
// operation against it. Callers never touch the state directly: they hand
// the store a transition function and the store runs it while no other
// operation can observe or mutate the state.
//
// BACKENDS:
//
// Two interchangeable implementations of [Store] are provided:
//
//   - [Mutex]: a single-permit FIFO semaphore guards the state. The calling
//     goroutine runs the transition itself.
//   - [Mailbox]: a dedicated owner goroutine drains a FIFO request queue and
//     is the only goroutine that ever touches the state.
//
// Both give the same external contract:
//
//   - Admission is FIFO, so every waiter is eventually admitted.
//   - The context bounds admission only. A caller whose context ends before
//     admission never runs its transition. Once admitted, a transition always
//     runs to completion.
//   - A transition that returns an error leaves the state exactly as it was.
//     The error is returned to the caller unchanged.
//   - A transition that panics releases the store and the panic is re-raised
//     in the caller's goroutine.
//   - Stores are not re-entrant. Calling into the same store from inside a
//     transition deadlocks until the nested call's context ends.
//
// Transitions must be short and must not block: the store is held for their
// whole duration. Transitions working on reference types (maps, slices) must
// validate before mutating, and values returned to callers must be copies.
package guard
