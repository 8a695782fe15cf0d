package engine

import (
	"fieldnet/internal/exchange"
	"fieldnet/internal/field"
)

// Old reads this device's own value at the call point from its
// previous export (init when absent), applies update, and broadcasts
// the result as the new value at that call point.
func Old[T any](r *Round, tag uint64, c exchange.Codec[T], init T, update func(T) T) T {
	r.stack.Push(tag)
	defer r.stack.Pop()
	tr := r.stack.Current()

	cur := init
	if v, ok, err := exchange.Value(r.prev, tr, c); err != nil {
		r.fail(err)
	} else if ok {
		cur = v
	}
	res := update(cur)
	r.out.Set(tr, c.Tag(), c.Append(nil, res))
	return res
}

// Nbr projects the neighbourhood at the call point into a field whose
// default is this device's previous value there (init when absent),
// passes it to combine, and broadcasts combine's output — not the
// field — as the new local value.
func Nbr[T any](r *Round, tag uint64, c exchange.Codec[T], init T, combine func(field.Field[T]) T) T {
	r.stack.Push(tag)
	defer r.stack.Pop()
	tr := r.stack.Current()

	fld, err := exchange.Project(r.ctx, r.prev, tr, c, init)
	if err != nil {
		r.fail(err)
	}
	res := combine(fld)
	r.out.Set(tr, c.Tag(), c.Append(nil, res))
	return res
}

// NbrField broadcasts value at the call point and returns the
// projected field of what the neighbours last said there.
func NbrField[T any](r *Round, tag uint64, c exchange.Codec[T], value T) field.Field[T] {
	r.stack.Push(tag)
	defer r.stack.Pop()
	tr := r.stack.Current()

	fld, err := exchange.Project(r.ctx, r.prev, tr, c, value)
	if err != nil {
		r.fail(err)
	}
	r.out.Set(tr, c.Tag(), c.Append(nil, value))
	return fld
}

// Share is the fused old+nbr: the projected field carries the device's
// previous value at the call point as an explicit self override, so
// neighbourhood folds see the device's own prior state alongside its
// neighbours'.
func Share[T any](r *Round, tag uint64, c exchange.Codec[T], init T, combine func(field.Field[T]) T) T {
	r.stack.Push(tag)
	defer r.stack.Pop()
	tr := r.stack.Current()

	fld, err := exchange.Project(r.ctx, r.prev, tr, c, init)
	if err != nil {
		r.fail(err)
	}
	fld = fld.With(r.ctx.Self(), fld.Default())
	res := combine(fld)
	r.out.Set(tr, c.Tag(), c.Append(nil, res))
	return res
}

// Branch evaluates one of two arms depending on cond, inside a trace
// frame that encodes the taken arm. Devices that do not enter an arm
// write no traces rooted there, so neighbours that took the other arm
// never observe them as contributors: this is alignment.
func Branch[T any](r *Round, tag uint64, cond bool, then func() T, otherwise func() T) T {
	r.stack.Push(tag)
	defer r.stack.Pop()

	arm := uint64(2)
	if cond {
		arm = 1
	}
	var out T
	r.stack.Call(arm, func() {
		if cond {
			out = then()
		} else if otherwise != nil {
			out = otherwise()
		}
	})
	return out
}

// Aligned runs fn inside a trace frame for tag; coordination routines
// use it to scope their internal call points.
func Aligned(r *Round, tag uint64, fn func()) {
	r.stack.Call(tag, fn)
}
