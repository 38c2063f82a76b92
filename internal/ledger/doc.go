// Package ledger provides typed guarded stores built on package guard:
// a counter, a key-value cache and an inventory stock ledger.
//
// Each specialization is a thin wrapper over guard.Run and guard.Read. The
// transitions themselves are exported as plain functions (IncrementOp,
// ReserveOp, ...) so tooling can replay a recorded history through exactly
// the logic the store executed.
//
// # Errors
//
//   - [ErrNotFound] - key or product is absent
//   - [ErrInsufficientStock] - a reservation exceeds available stock (see [InsufficientStockError])
//   - [ErrInvalidQuantity] - a quantity is negative or zero where a positive one is required
//
// Errors never leave a store half-updated: every transition validates before
// it mutates.
package ledger
