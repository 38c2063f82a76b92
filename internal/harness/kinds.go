package harness

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/guardian/internal/guard"
	"github.com/roach88/guardian/internal/history"
	"github.com/roach88/guardian/internal/ledger"
)

// Store kinds a scenario can target.
const (
	KindCounter   = "counter"
	KindCache     = "cache"
	KindInventory = "inventory"
)

// opNames lists the operations of each kind, for validation.
var opNames = map[string]map[string]bool{
	KindCounter:   {"increment": true, "value": true},
	KindCache:     {"set": true, "get": true, "delete": true, "len": true},
	KindInventory: {"initialize": true, "reserve": true, "restock": true, "stock": true},
}

// opFunc runs one recorded operation against a store.
type opFunc[S any] func(ctx context.Context, rec *history.Recorder[S], st guard.Store[S], args map[string]any) (any, error)

// storeKind describes how to build, copy and drive one kind of store.
type storeKind[S any] struct {
	name    string
	initial func(seed any) (S, error)
	clone   func(S) S
	ops     map[string]opFunc[S]
}

var counterKind = storeKind[int64]{
	name: KindCounter,
	initial: func(seed any) (int64, error) {
		if seed == nil {
			return 0, nil
		}
		return toInt64(seed)
	},
	clone: func(n int64) int64 { return n },
	ops: map[string]opFunc[int64]{
		"increment": func(ctx context.Context, rec *history.Recorder[int64], st guard.Store[int64], args map[string]any) (any, error) {
			return history.Update(ctx, rec, st, "increment", args, ledger.IncrementOp)
		},
		"value": func(ctx context.Context, rec *history.Recorder[int64], st guard.Store[int64], args map[string]any) (any, error) {
			return history.View(ctx, rec, st, "value", args, ledger.ValueOp)
		},
	},
}

type cacheState = map[string]string

var cacheKind = storeKind[cacheState]{
	name: KindCache,
	initial: func(seed any) (cacheState, error) {
		if seed != nil {
			return nil, fmt.Errorf("cache scenarios take no initial state; use setup steps")
		}
		return cacheState{}, nil
	},
	clone: maps.Clone[cacheState],
	ops: map[string]opFunc[cacheState]{
		"set": func(ctx context.Context, rec *history.Recorder[cacheState], st guard.Store[cacheState], args map[string]any) (any, error) {
			key, err := stringArg(args, "key")
			if err != nil {
				return nil, err
			}
			value, err := stringArg(args, "value")
			if err != nil {
				return nil, err
			}
			return history.Update(ctx, rec, st, "set", args, ledger.SetOp(key, value))
		},
		"get": func(ctx context.Context, rec *history.Recorder[cacheState], st guard.Store[cacheState], args map[string]any) (any, error) {
			key, err := stringArg(args, "key")
			if err != nil {
				return nil, err
			}
			return history.View(ctx, rec, st, "get", args, ledger.GetOp[string, string](key))
		},
		"delete": func(ctx context.Context, rec *history.Recorder[cacheState], st guard.Store[cacheState], args map[string]any) (any, error) {
			key, err := stringArg(args, "key")
			if err != nil {
				return nil, err
			}
			return history.Update(ctx, rec, st, "delete", args, ledger.DeleteOp[string, string](key))
		},
		"len": func(ctx context.Context, rec *history.Recorder[cacheState], st guard.Store[cacheState], args map[string]any) (any, error) {
			return history.View(ctx, rec, st, "len", args, func(m cacheState) (int64, error) {
				return int64(len(m)), nil
			})
		},
	},
}

var inventoryKind = storeKind[ledger.Stock]{
	name: KindInventory,
	initial: func(seed any) (ledger.Stock, error) {
		stock := ledger.Stock{}
		if seed == nil {
			return stock, nil
		}
		m, ok := seed.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("inventory initial state must be a map of product to quantity, got %T", seed)
		}
		for id, v := range m {
			qty, err := toInt64(v)
			if err != nil {
				return nil, fmt.Errorf("initial %s: %w", id, err)
			}
			if qty < 0 {
				return nil, fmt.Errorf("initial %s: %w: %d", id, ledger.ErrInvalidQuantity, qty)
			}
			stock[id] = qty
		}
		return stock, nil
	},
	clone: maps.Clone[ledger.Stock],
	ops: map[string]opFunc[ledger.Stock]{
		"initialize": productQtyOp("initialize", ledger.InitializeOp),
		"reserve":    productQtyOp("reserve", ledger.ReserveOp),
		"restock":    productQtyOp("restock", ledger.RestockOp),
		"stock": func(ctx context.Context, rec *history.Recorder[ledger.Stock], st guard.Store[ledger.Stock], args map[string]any) (any, error) {
			id, err := stringArg(args, "product")
			if err != nil {
				return nil, err
			}
			return history.View(ctx, rec, st, "stock", args, ledger.StockOp(id))
		},
	},
}

func productQtyOp(kind string, op func(string, int64) func(ledger.Stock) (int64, ledger.Stock, error)) opFunc[ledger.Stock] {
	return func(ctx context.Context, rec *history.Recorder[ledger.Stock], st guard.Store[ledger.Stock], args map[string]any) (any, error) {
		id, err := stringArg(args, "product")
		if err != nil {
			return nil, err
		}
		qty, err := int64Arg(args, "qty")
		if err != nil {
			return nil, err
		}
		return history.Update(ctx, rec, st, kind, args, op(id, qty))
	}
}

// ArgError reports a missing or mistyped step argument.
// It is a scenario authoring error, not an operation outcome.
type ArgError struct {
	Name string
	Msg  string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Name, e.Msg)
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", &ArgError{Name: name, Msg: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgError{Name: name, Msg: fmt.Sprintf("want string, got %T", v)}
	}
	return s, nil
}

func int64Arg(args map[string]any, name string) (int64, error) {
	v, ok := args[name]
	if !ok {
		return 0, &ArgError{Name: name, Msg: "missing"}
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, &ArgError{Name: name, Msg: err.Error()}
	}
	return n, nil
}

// toInt64 converts the integer types YAML decoding produces.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("integer %d overflows int64", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}

// normalizeArgs converts YAML integers to int64 so recorded arguments
// have one representation.
func normalizeArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if n, err := toInt64(v); err == nil {
			out[k] = n
			continue
		}
		out[k] = v
	}
	return out
}
