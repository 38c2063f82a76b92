package history

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// Violation describes one way a recorded history fails to be linearizable.
type Violation struct {
	ID     string
	Kind   string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("history violation at %s (%s): %s", v.ID, v.Kind, v.Reason)
}

// CheckSections verifies the stamps of admitted records, per store:
// each record satisfies Invoke < Acquire < Release < Return, and
// sections ordered by Acquire are pairwise disjoint.
func CheckSections(records []Record) error {
	byStore := make(map[string][]Record)
	var stores []string
	for _, r := range records {
		if !r.Admitted() {
			continue
		}
		if _, ok := byStore[r.Store]; !ok {
			stores = append(stores, r.Store)
		}
		byStore[r.Store] = append(byStore[r.Store], r)
	}
	slices.Sort(stores)

	var errs []error
	for _, store := range stores {
		sections := byStore[store]
		slices.SortFunc(sections, func(a, b Record) int {
			return compareInt64(a.Acquire, b.Acquire)
		})
		for i, r := range sections {
			if !(r.Invoke < r.Acquire && r.Acquire < r.Release && r.Release < r.Return) {
				errs = append(errs, &Violation{
					ID:   r.ID,
					Kind: r.Kind,
					Reason: fmt.Sprintf("stamps out of order: invoke=%d acquire=%d release=%d return=%d",
						r.Invoke, r.Acquire, r.Release, r.Return),
				})
			}
			if i == 0 {
				continue
			}
			prev := sections[i-1]
			if prev.Release >= r.Acquire {
				errs = append(errs, &Violation{
					ID:     r.ID,
					Kind:   r.Kind,
					Reason: fmt.Sprintf("section [%d,%d] overlaps %s [%d,%d]", r.Acquire, r.Release, prev.ID, prev.Acquire, prev.Release),
				})
			}
		}
	}
	return errors.Join(errs...)
}

// Check verifies that entries form a linearizable history of one store
// starting from initial. See Replay.
func Check[S any](initial S, clone func(S) S, entries []Entry[S]) error {
	_, err := Replay(initial, clone, entries)
	return err
}

// Replay re-executes the admitted entries sequentially in acquire order,
// starting from a clone of initial, and compares every result with the
// recorded one. It returns the final sequential state.
//
// Entries that were never admitted are skipped: they must not have
// touched the state, so any effect they had shows up as a mismatch later.
func Replay[S any](initial S, clone func(S) S, entries []Entry[S]) (S, error) {
	records := make([]Record, len(entries))
	for i, e := range entries {
		records[i] = e.Record
	}
	if err := CheckSections(records); err != nil {
		return initial, err
	}

	admitted := make([]Entry[S], 0, len(entries))
	for _, e := range entries {
		if e.Admitted() {
			admitted = append(admitted, e)
		}
	}
	slices.SortFunc(admitted, func(a, b Entry[S]) int {
		return compareInt64(a.Acquire, b.Acquire)
	})

	state := clone(initial)
	var errs []error
	for _, e := range admitted {
		if e.replay == nil {
			errs = append(errs, &Violation{ID: e.ID, Kind: e.Kind, Reason: "entry cannot be replayed"})
			continue
		}
		got, next, err := e.replay(state)
		switch {
		case err != nil && e.Err == nil:
			errs = append(errs, &Violation{
				ID: e.ID, Kind: e.Kind,
				Reason: fmt.Sprintf("sequential replay failed with %q, recorded success", err),
			})
		case err == nil && e.Err != nil:
			errs = append(errs, &Violation{
				ID: e.ID, Kind: e.Kind,
				Reason: fmt.Sprintf("sequential replay succeeded, recorded %q", e.Error),
			})
		case err != nil:
			if err.Error() != e.Error {
				errs = append(errs, &Violation{
					ID: e.ID, Kind: e.Kind,
					Reason: fmt.Sprintf("sequential replay failed with %q, recorded %q", err, e.Error),
				})
			}
		default:
			if !reflect.DeepEqual(got, e.Result) {
				errs = append(errs, &Violation{
					ID: e.ID, Kind: e.Kind,
					Reason: fmt.Sprintf("sequential replay returned %v, recorded %v", got, e.Result),
				})
			}
			state = next
		}
	}
	return state, errors.Join(errs...)
}
