package ledger

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/roach88/guardian/internal/guard"
)

// Stock maps product IDs to non-negative quantities.
type Stock = map[string]int64

// InitializeOp sets the stock of id to qty.
func InitializeOp(id string, qty int64) func(Stock) (int64, Stock, error) {
	return func(s Stock) (int64, Stock, error) {
		if qty < 0 {
			return 0, s, fmt.Errorf("%w: initial stock %d for %s", ErrInvalidQuantity, qty, id)
		}
		s[id] = qty
		return qty, s, nil
	}
}

// ReserveOp takes qty units of id and returns the remaining stock.
// An absent product has zero stock.
func ReserveOp(id string, qty int64) func(Stock) (int64, Stock, error) {
	return func(s Stock) (int64, Stock, error) {
		if qty <= 0 {
			return 0, s, fmt.Errorf("%w: reservation of %d for %s", ErrInvalidQuantity, qty, id)
		}
		available := s[id]
		if qty > available {
			return 0, s, &InsufficientStockError{ProductID: id, Requested: qty, Available: available}
		}
		s[id] = available - qty
		return s[id], s, nil
	}
}

// RestockOp adds qty units of id and returns the new stock.
func RestockOp(id string, qty int64) func(Stock) (int64, Stock, error) {
	return func(s Stock) (int64, Stock, error) {
		if qty <= 0 {
			return 0, s, fmt.Errorf("%w: restock of %d for %s", ErrInvalidQuantity, qty, id)
		}
		if qty > math.MaxInt64-s[id] {
			return 0, s, fmt.Errorf("%w: restock of %d for %s overflows stock %d", ErrInvalidQuantity, qty, id, s[id])
		}
		s[id] += qty
		return s[id], s, nil
	}
}

// StockOp reads the stock of id, failing with ErrNotFound for unknown products.
func StockOp(id string) func(Stock) (int64, error) {
	return func(s Stock) (int64, error) {
		qty, ok := s[id]
		if !ok {
			return 0, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return qty, nil
	}
}

// Inventory is a guarded stock ledger. Stock never goes negative.
type Inventory struct {
	st guard.Store[Stock]
}

// NewInventory wraps an existing store. The store's state must be a non-nil map.
func NewInventory(st guard.Store[Stock]) *Inventory {
	return &Inventory{st: st}
}

// OpenInventory creates an inventory on the given backend, seeded with a
// copy of initial. Negative initial quantities are rejected.
func OpenInventory(backend guard.Backend, initial Stock, opts ...guard.Option) (*Inventory, error) {
	for id, qty := range initial {
		if qty < 0 {
			return nil, fmt.Errorf("%w: initial stock %d for %s", ErrInvalidQuantity, qty, id)
		}
	}
	seed := maps.Clone(initial)
	if seed == nil {
		seed = make(Stock)
	}
	st, err := guard.New(backend, seed, opts...)
	if err != nil {
		return nil, err
	}
	return NewInventory(st), nil
}

// Initialize sets the stock of a product, replacing any previous value.
func (inv *Inventory) Initialize(ctx context.Context, id string, qty int64) error {
	_, err := guard.Run(ctx, inv.st, InitializeOp(id, qty))
	return err
}

// Reserve takes qty units of a product and returns what remains.
// If qty exceeds the available stock it fails with *InsufficientStockError
// and the ledger is unchanged.
func (inv *Inventory) Reserve(ctx context.Context, id string, qty int64) (int64, error) {
	return guard.Run(ctx, inv.st, ReserveOp(id, qty))
}

// Restock adds qty units of a product and returns the new stock.
func (inv *Inventory) Restock(ctx context.Context, id string, qty int64) (int64, error) {
	return guard.Run(ctx, inv.st, RestockOp(id, qty))
}

// Stock returns the stock of a product, or an error matching ErrNotFound.
func (inv *Inventory) Stock(ctx context.Context, id string) (int64, error) {
	return guard.Read(ctx, inv.st, StockOp(id))
}

// Snapshot returns a copy of the whole ledger.
func (inv *Inventory) Snapshot(ctx context.Context) (Stock, error) {
	return guard.Read(ctx, inv.st, func(s Stock) (Stock, error) {
		return maps.Clone(s), nil
	})
}

// Store returns the underlying store.
func (inv *Inventory) Store() guard.Store[Stock] {
	return inv.st
}

// Close closes the underlying store.
func (inv *Inventory) Close() error {
	return inv.st.Close()
}
