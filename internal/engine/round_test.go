package engine

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"fieldnet/internal/exchange"
	"fieldnet/internal/field"
	"fieldnet/internal/model"
	"fieldnet/internal/trace"
)

// testDevice drives rounds for one device without a scheduler.
type testDevice struct {
	uid   model.DeviceID
	stack *trace.Stack
	ctx   *exchange.Context
	prev  *exchange.Export
}

func newTestDevice(uid model.DeviceID) *testDevice {
	return &testDevice{
		uid:   uid,
		stack: trace.New(),
		ctx:   exchange.NewContext(uid, 100),
	}
}

func (d *testDevice) hear(from *testDevice, t model.Time) {
	d.ctx.Insert(from.uid, t, from.prev, t)
}

func (d *testDevice) round(t *testing.T, now model.Time, p Program) *exchange.Export {
	t.Helper()
	d.ctx.CollectOld(now)
	r := NewRound(d.uid, now, d.stack, d.ctx, d.prev, model.NewStorage(), rand.New(rand.NewSource(1)))
	out, err := Execute(r, p)
	if err != nil {
		t.Fatalf("round on device %d: %v", d.uid, err)
	}
	d.prev = out
	return out
}

func (d *testDevice) roundErr(now model.Time, p Program) error {
	d.ctx.CollectOld(now)
	r := NewRound(d.uid, now, d.stack, d.ctx, d.prev, model.NewStorage(), rand.New(rand.NewSource(1)))
	out, err := Execute(r, p)
	if err == nil {
		d.prev = out
	}
	return err
}

func TestOldReadsOwnPreviousExport(t *testing.T) {
	d := newTestDevice(1)
	counter := func(r *Round) error {
		Old(r, 0, exchange.Int64, 0, func(v int64) int64 { return v + 1 })
		return nil
	}
	for want := int64(1); want <= 3; want++ {
		out := d.round(t, float64(want), counter)
		tr := out.Traces()
		if len(tr) != 1 {
			t.Fatalf("expected one export entry, got=%d", len(tr))
		}
		v, ok, err := exchange.Value(out, tr[0], exchange.Int64)
		if err != nil || !ok || v != want {
			t.Fatalf("round %d exported %d (ok=%v err=%v)", want, v, ok, err)
		}
	}
}

func TestNbrCombinesNeighbourValues(t *testing.T) {
	a, b := newTestDevice(1), newTestDevice(2)
	program := func(init float64) Program {
		return func(r *Round) error {
			Nbr(r, 0, exchange.Float, init, func(f field.Field[float64]) float64 {
				return f.Fold(func(acc, v float64) float64 { return min(acc, v) }, init)
			})
			return nil
		}
	}
	a.round(t, 0, program(5))
	b.round(t, 0, program(2))
	a.hear(b, 0)
	out := a.round(t, 1, program(5))
	v, _, err := exchange.Value(out, out.Traces()[0], exchange.Float)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != 2 {
		t.Fatalf("expected min over neighbourhood 2, got=%v", v)
	}
}

func TestNbrWritesResultNotField(t *testing.T) {
	d := newTestDevice(1)
	out := d.round(t, 0, func(r *Round) error {
		Nbr(r, 0, exchange.Float, 9, func(field.Field[float64]) float64 { return 42 })
		return nil
	})
	v, _, err := exchange.Value(out, out.Traces()[0], exchange.Float)
	if err != nil || v != 42 {
		t.Fatalf("expected combine result 42 exported, got=%v err=%v", v, err)
	}
}

func TestShareIncludesSelfOverride(t *testing.T) {
	d := newTestDevice(3)
	count := func(r *Round) error {
		Share(r, 0, exchange.Float, 10, func(f field.Field[float64]) float64 {
			if !f.Has(3) {
				t.Fatal("expected share field to carry a self override")
			}
			// neighbour-only folds still see the prior value via self
			return f.FoldExcl(func(acc, v float64) float64 { return acc + v }, 0)
		})
		return nil
	}
	out := d.round(t, 0, count)
	v, _, _ := exchange.Value(out, out.Traces()[0], exchange.Float)
	if v != 10 {
		t.Fatalf("expected first share round to fold init via self, got=%v", v)
	}
	out = d.round(t, 1, count)
	v, _, _ = exchange.Value(out, out.Traces()[0], exchange.Float)
	if v != 10 {
		t.Fatalf("expected self override to equal previous result, got=%v", v)
	}
}

func parityProgram(r *Round) error {
	Branch(r, 1, r.UID%2 == 0,
		func() float64 {
			return Nbr(r, 0, exchange.Float, 1, func(f field.Field[float64]) float64 {
				return f.Fold(func(acc, v float64) float64 { return acc + v }, 0)
			})
		},
		func() float64 {
			return Nbr(r, 0, exchange.Float, -1, func(f field.Field[float64]) float64 {
				return f.Fold(func(acc, v float64) float64 { return acc + v }, 0)
			})
		})
	return nil
}

func TestBranchAlignment(t *testing.T) {
	even, odd := newTestDevice(2), newTestDevice(3)
	evenOut := even.round(t, 0, parityProgram)
	oddOut := odd.round(t, 0, parityProgram)

	if len(evenOut.Traces()) != 1 || len(oddOut.Traces()) != 1 {
		t.Fatalf("expected one branch-internal trace each, got %d and %d", len(evenOut.Traces()), len(oddOut.Traces()))
	}
	if evenOut.Traces()[0] == oddOut.Traces()[0] {
		t.Fatal("expected distinct traces for the two branch arms")
	}

	// cross-parity exchange: the neighbour's export holds no entry at
	// this device's branch traces, so projection yields defaults only
	even.hear(odd, 0)
	even.round(t, 1, func(r *Round) error {
		Branch(r, 1, true,
			func() float64 {
				return Nbr(r, 0, exchange.Float, 1, func(f field.Field[float64]) float64 {
					if f.Len() != 0 {
						t.Fatalf("expected no aligned neighbours across parity, got ids=%v", f.IDs())
					}
					return f.Default()
				})
			},
			nil)
		return nil
	})
}

func TestBranchArmsProduceDistinctTraces(t *testing.T) {
	d := newTestDevice(1)
	var thenTr, elseTr []model.Trace
	d.round(t, 0, func(r *Round) error {
		Branch(r, 1, true, func() int64 {
			return Old(r, 0, exchange.Int64, 0, func(v int64) int64 { return v })
		}, nil)
		return nil
	})
	thenTr = d.prev.Traces()
	e := newTestDevice(1)
	e.round(t, 0, func(r *Round) error {
		Branch(r, 1, false, func() int64 { return 0 }, func() int64 {
			return Old(r, 0, exchange.Int64, 0, func(v int64) int64 { return v })
		})
		return nil
	})
	elseTr = e.prev.Traces()
	if thenTr[0] == elseTr[0] {
		t.Fatal("expected then/else arms to root distinct traces")
	}
}

func TestTraceDeterminismAcrossRuns(t *testing.T) {
	run := func() []model.Trace {
		d := newTestDevice(7)
		d.round(t, 0, func(r *Round) error {
			Old(r, 4, exchange.Float, 0, func(v float64) float64 { return v })
			Nbr(r, 9, exchange.Float, 0, func(f field.Field[float64]) float64 { return f.Default() })
			Branch(r, 2, true, func() float64 {
				return Share(r, 0, exchange.Float, 0, func(f field.Field[float64]) float64 { return f.Default() })
			}, nil)
			return nil
		})
		return d.prev.Traces()
	}
	a, b := run(), run()
	if !slices.Equal(a, b) {
		t.Fatalf("expected identical trace sequences, got %v vs %v", a, b)
	}
}

func TestRoundPanicBecomesRoundError(t *testing.T) {
	d := newTestDevice(1)
	err := d.roundErr(0, func(r *Round) error {
		Nbr(r, 0, exchange.Float, 0, func(field.Field[float64]) float64 {
			panic("user code fault")
		})
		return nil
	})
	if !errors.Is(err, model.ErrRound) {
		t.Fatalf("expected round error, got=%v", err)
	}
	if d.prev != nil {
		t.Fatal("expected no export published by the failed round")
	}
	// the stack is usable again
	d.round(t, 1, func(r *Round) error {
		Old(r, 0, exchange.Int64, 0, func(v int64) int64 { return v })
		return nil
	})
}

func TestDecodeMismatchAbortsRound(t *testing.T) {
	a, b := newTestDevice(1), newTestDevice(2)
	b.round(t, 0, func(r *Round) error {
		Nbr(r, 0, exchange.Int64, 0, func(f field.Field[int64]) int64 { return f.Default() })
		return nil
	})
	a.hear(b, 0)
	err := a.roundErr(1, func(r *Round) error {
		Nbr(r, 0, exchange.Float, 0, func(f field.Field[float64]) float64 { return f.Default() })
		return nil
	})
	if !errors.Is(err, model.ErrRound) || !errors.Is(err, model.ErrProtocol) {
		t.Fatalf("expected round error wrapping protocol error, got=%v", err)
	}
}
