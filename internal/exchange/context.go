package exchange

import (
	"slices"

	"fieldnet/internal/field"
	"fieldnet/internal/model"
)

type neighbourEntry struct {
	time   model.Time
	export *Export
}

type cacheKey struct {
	id model.DeviceID
	tr model.Trace
}

// Context is a device's view of its neighbourhood: the most recent
// export received from each neighbour, with its reception time.
// Entries are retired once their reception time falls more than the
// retain window behind the current round. The context never stores the
// device itself; the self contribution is read from the device's own
// previous export at projection time.
//
// A context is only touched by the round executing on its device, so
// it carries no lock; cross-thread deliveries go through the mailbox.
type Context struct {
	self       model.DeviceID
	retain     model.Time
	neighbours map[model.DeviceID]neighbourEntry

	// decoded projection values, valid for the duration of one round
	cache map[cacheKey]any
}

func NewContext(self model.DeviceID, retain model.Time) *Context {
	return &Context{
		self:       self,
		retain:     retain,
		neighbours: make(map[model.DeviceID]neighbourEntry),
		cache:      make(map[cacheKey]any),
	}
}

func (c *Context) Self() model.DeviceID { return c.self }

// Insert records a neighbour's export received at time t. An existing
// older entry is replaced; an envelope already outside the retain
// window at insertion is discarded.
func (c *Context) Insert(id model.DeviceID, t model.Time, e *Export, now model.Time) {
	if id == c.self || e == nil {
		return
	}
	if t < now-c.retain {
		return
	}
	if cur, ok := c.neighbours[id]; ok && cur.time > t {
		return
	}
	c.neighbours[id] = neighbourEntry{time: t, export: e}
	for tr := range c.cache {
		if tr.id == id {
			delete(c.cache, tr)
		}
	}
}

// CollectOld evicts entries whose reception time is stale and resets
// the per-round decode cache. Round drivers call it at round start.
func (c *Context) CollectOld(now model.Time) {
	for id, entry := range c.neighbours {
		if entry.time < now-c.retain {
			delete(c.neighbours, id)
		}
	}
	c.cache = make(map[cacheKey]any)
}

// Size returns the number of live neighbour entries.
func (c *Context) Size() int { return len(c.neighbours) }

func (c *Context) Has(id model.DeviceID) bool {
	_, ok := c.neighbours[id]
	return ok
}

// IDs lists the live neighbours in ascending order.
func (c *Context) IDs() []model.DeviceID {
	out := make([]model.DeviceID, 0, len(c.neighbours))
	for id := range c.neighbours {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Project builds the field at a trace: the default is the device's own
// value at that trace in prev (or init when absent), and the neighbour
// table holds the value present in each neighbour's export at the same
// trace. Neighbours whose export has no entry at the trace did not
// enter that sub-expression and contribute nothing. Decoded values are
// cached until the next round.
func Project[T any](c *Context, prev *Export, tr model.Trace, codec Codec[T], init T) (field.Field[T], error) {
	def := init
	if v, ok, err := Value(prev, tr, codec); err != nil {
		return field.Field[T]{}, err
	} else if ok {
		def = v
	}
	overrides := make(map[model.DeviceID]T)
	for id, entry := range c.neighbours {
		if !entry.export.Has(tr) {
			continue
		}
		key := cacheKey{id: id, tr: tr}
		if cached, ok := c.cache[key]; ok {
			if v, ok := cached.(T); ok {
				overrides[id] = v
				continue
			}
		}
		v, ok, err := Value(entry.export, tr, codec)
		if err != nil {
			return field.Field[T]{}, err
		}
		if !ok {
			continue
		}
		c.cache[key] = v
		overrides[id] = v
	}
	return field.FromMap(def, overrides), nil
}
