package exchange

import (
	"slices"

	"fieldnet/internal/model"
)

// Payload is one type-erased export value: a type tag plus the encoded
// bytes. Decoding is deferred to projection time.
type Payload struct {
	Tag  byte
	Data []byte
}

// Export is the outbound message produced by one round: a mapping from
// trace to payload. Exports are append-only within a round and
// immutable once sealed; sealed exports are safe to share across
// goroutines.
type Export struct {
	entries map[model.Trace]Payload
	sealed  bool
}

func NewExport() *Export {
	return &Export{entries: make(map[model.Trace]Payload)}
}

// Set records the payload broadcast at a trace. Writing to a sealed
// export is an invariant violation.
func (e *Export) Set(tr model.Trace, tag byte, data []byte) {
	if e.sealed {
		panic(model.Invariantf("write to sealed export at trace %d", tr))
	}
	e.entries[tr] = Payload{Tag: tag, Data: data}
}

func (e *Export) Get(tr model.Trace) (Payload, bool) {
	if e == nil {
		return Payload{}, false
	}
	p, ok := e.entries[tr]
	return p, ok
}

func (e *Export) Has(tr model.Trace) bool {
	_, ok := e.Get(tr)
	return ok
}

func (e *Export) Len() int {
	if e == nil {
		return 0
	}
	return len(e.entries)
}

// Seal freezes the export. Idempotent.
func (e *Export) Seal() { e.sealed = true }

func (e *Export) Sealed() bool { return e.sealed }

// Traces lists the recorded traces in ascending order, so the wire
// encoding of an export is deterministic.
func (e *Export) Traces() []model.Trace {
	if e == nil {
		return nil
	}
	out := make([]model.Trace, 0, len(e.entries))
	for tr := range e.entries {
		out = append(out, tr)
	}
	slices.Sort(out)
	return out
}

// Value decodes the export's payload at a trace through a codec. A
// missing entry reports ok=false; a tag mismatch is a protocol error.
func Value[T any](e *Export, tr model.Trace, c Codec[T]) (T, bool, error) {
	var zero T
	p, ok := e.Get(tr)
	if !ok {
		return zero, false, nil
	}
	if p.Tag != c.Tag() {
		return zero, false, model.Protocolf("trace %d holds tag %d, decoder expects %d", tr, p.Tag, c.Tag())
	}
	v, err := c.Decode(p.Data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}
