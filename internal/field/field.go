// Package field implements the neighbourhood data plane: a local value
// paired with a sparse table of per-neighbour overrides.
package field

import (
	"slices"

	"fieldnet/internal/model"
)

// Entry is one neighbour override.
type Entry[T any] struct {
	ID    model.DeviceID
	Value T
}

// Field is a local default value plus a table of neighbour overrides,
// kept sorted by ascending device id with unique keys. Fields are
// ephemeral per-round values; they never persist across rounds.
type Field[T any] struct {
	def     T
	entries []Entry[T]
}

// New builds a field holding only a default.
func New[T any](def T) Field[T] {
	return Field[T]{def: def}
}

// FromMap builds a field from a default and a neighbour map.
func FromMap[T any](def T, m map[model.DeviceID]T) Field[T] {
	f := Field[T]{def: def, entries: make([]Entry[T], 0, len(m))}
	for id, v := range m {
		f.entries = append(f.entries, Entry[T]{ID: id, Value: v})
	}
	slices.SortFunc(f.entries, func(a, b Entry[T]) int {
		return int(int64(a.ID) - int64(b.ID))
	})
	return f
}

func (f Field[T]) Default() T { return f.def }

// Len returns the number of neighbour overrides.
func (f Field[T]) Len() int { return len(f.entries) }

// IDs returns the override keys in ascending order.
func (f Field[T]) IDs() []model.DeviceID {
	ids := make([]model.DeviceID, len(f.entries))
	for i, e := range f.entries {
		ids[i] = e.ID
	}
	return ids
}

// At reads the field at a device id: the neighbour's override if
// present, else the default.
func (f Field[T]) At(id model.DeviceID) T {
	if i, ok := f.search(id); ok {
		return f.entries[i].Value
	}
	return f.def
}

// Has reports whether an override exists for id.
func (f Field[T]) Has(id model.DeviceID) bool {
	_, ok := f.search(id)
	return ok
}

// With returns a copy of the field with an override set for id.
func (f Field[T]) With(id model.DeviceID, v T) Field[T] {
	out := Field[T]{def: f.def, entries: slices.Clone(f.entries)}
	if i, ok := out.search(id); ok {
		out.entries[i].Value = v
		return out
	}
	out.entries = append(out.entries, Entry[T]{ID: id, Value: v})
	slices.SortFunc(out.entries, func(a, b Entry[T]) int {
		return int(int64(a.ID) - int64(b.ID))
	})
	return out
}

// Fold left-folds op across the neighbours in ascending id order, with
// the local value folded in exactly once, before any neighbour. A
// field with no overrides folds to op(init, default).
func (f Field[T]) Fold(op func(acc, v T) T, init T) T {
	acc := op(init, f.def)
	for _, e := range f.entries {
		acc = op(acc, e.Value)
	}
	return acc
}

// FoldExcl left-folds op across the neighbour overrides only, starting
// from init. The local default is not folded; callers use it when the
// local contribution is accounted for separately.
func (f Field[T]) FoldExcl(op func(acc, v T) T, init T) T {
	acc := init
	for _, e := range f.entries {
		acc = op(acc, e.Value)
	}
	return acc
}

// Restrict keeps only the overrides whose id satisfies keep; the
// default is unchanged.
func (f Field[T]) Restrict(keep func(model.DeviceID) bool) Field[T] {
	out := Field[T]{def: f.def}
	for _, e := range f.entries {
		if keep(e.ID) {
			out.entries = append(out.entries, e)
		}
	}
	return out
}

func (f Field[T]) search(id model.DeviceID) (int, bool) {
	return slices.BinarySearchFunc(f.entries, id, func(e Entry[T], target model.DeviceID) int {
		return int(int64(e.ID) - int64(target))
	})
}

// Map applies fn pointwise to the default and every override.
func Map[T, U any](f Field[T], fn func(T) U) Field[U] {
	out := Field[U]{def: fn(f.def), entries: make([]Entry[U], len(f.entries))}
	for i, e := range f.entries {
		out.entries[i] = Entry[U]{ID: e.ID, Value: fn(e.Value)}
	}
	return out
}

// Combine merges two fields pointwise over the union of their
// neighbour sets; a missing override is substituted by that field's
// default.
func Combine[T, U, V any](a Field[T], b Field[U], fn func(T, U) V) Field[V] {
	out := Field[V]{def: fn(a.def, b.def)}
	i, j := 0, 0
	for i < len(a.entries) || j < len(b.entries) {
		switch {
		case j >= len(b.entries) || (i < len(a.entries) && a.entries[i].ID < b.entries[j].ID):
			e := a.entries[i]
			out.entries = append(out.entries, Entry[V]{ID: e.ID, Value: fn(e.Value, b.def)})
			i++
		case i >= len(a.entries) || b.entries[j].ID < a.entries[i].ID:
			e := b.entries[j]
			out.entries = append(out.entries, Entry[V]{ID: e.ID, Value: fn(a.def, e.Value)})
			j++
		default:
			out.entries = append(out.entries, Entry[V]{ID: a.entries[i].ID, Value: fn(a.entries[i].Value, b.entries[j].Value)})
			i++
			j++
		}
	}
	return out
}

// MinHood reduces the field, local value included, keeping the least
// element under less. Ties keep the earlier element in fold order, so
// reductions whose values embed the device id resolve toward the
// smaller id.
func MinHood[T any](f Field[T], less func(a, b T) bool) T {
	best := f.def
	for _, e := range f.entries {
		if less(e.Value, best) {
			best = e.Value
		}
	}
	return best
}
