// Package sequence provides the event-time generators that drive
// device rounds and global events such as log ticks.
package sequence

import (
	"math/rand"
	"slices"

	"fieldnet/internal/model"
)

// Generator yields a non-decreasing sequence of event times. Next
// peeks the pending time without consuming it; Advance consumes it.
// A generator with no further events reports model.TimeNever.
type Generator interface {
	Next() model.Time
	Advance(r *rand.Rand)
}

// Never emits no events.
type Never struct{}

func (Never) Next() model.Time     { return model.TimeNever }
func (Never) Advance(_ *rand.Rand) {}

// Once emits a single event at a fixed time.
type Once struct {
	At   model.Time
	done bool
}

func NewOnce(at model.Time) *Once { return &Once{At: at} }

func (o *Once) Next() model.Time {
	if o.done {
		return model.TimeNever
	}
	return o.At
}

func (o *Once) Advance(_ *rand.Rand) { o.done = true }

// Multiple emits n simultaneous events at a fixed time.
type Multiple struct {
	At    model.Time
	Count int
	fired int
}

func NewMultiple(at model.Time, n int) *Multiple { return &Multiple{At: at, Count: n} }

func (m *Multiple) Next() model.Time {
	if m.fired >= m.Count {
		return model.TimeNever
	}
	return m.At
}

func (m *Multiple) Advance(_ *rand.Rand) { m.fired++ }

// List emits events at an explicit list of times.
type List struct {
	times []model.Time
	idx   int
}

func NewList(times ...model.Time) *List {
	sorted := append([]model.Time(nil), times...)
	slices.Sort(sorted)
	return &List{times: sorted}
}

func (l *List) Next() model.Time {
	if l.idx >= len(l.times) {
		return model.TimeNever
	}
	return l.times[l.idx]
}

func (l *List) Advance(_ *rand.Rand) {
	if l.idx < len(l.times) {
		l.idx++
	}
}

// Periodic emits events from Start every Period, up to End and up to
// Count events (zero means unbounded). A non-zero Jitter draws each
// gap uniformly from Period*(1±Jitter) using the caller's generator,
// so jittered schedules stay reproducible under a fixed seed.
type Periodic struct {
	Start  model.Time
	Period model.Time
	End    model.Time // zero means no end
	Count  int        // zero means unbounded
	Jitter float64

	started bool
	current model.Time
	emitted int
}

func (p *Periodic) Next() model.Time {
	if !p.started {
		p.started = true
		p.current = p.Start
	}
	if p.Count > 0 && p.emitted >= p.Count {
		return model.TimeNever
	}
	if p.End > 0 && p.current > p.End {
		return model.TimeNever
	}
	return p.current
}

func (p *Periodic) Advance(r *rand.Rand) {
	if p.Next() == model.TimeNever {
		return
	}
	p.emitted++
	gap := p.Period
	if p.Jitter > 0 && r != nil {
		gap = p.Period * (1 + p.Jitter*(2*r.Float64()-1))
	}
	if gap <= 0 {
		gap = p.Period
	}
	p.current += gap
}

// Merge interleaves several generators into one sequence; on ties the
// earliest-listed generator advances first.
type Merge struct {
	gens []Generator
}

func NewMerge(gens ...Generator) *Merge { return &Merge{gens: gens} }

func (m *Merge) Next() model.Time {
	best := model.TimeNever
	for _, g := range m.gens {
		if t := g.Next(); t < best {
			best = t
		}
	}
	return best
}

func (m *Merge) Advance(r *rand.Rand) {
	best := m.Next()
	if best == model.TimeNever {
		return
	}
	for _, g := range m.gens {
		if g.Next() == best {
			g.Advance(r)
			return
		}
	}
}
