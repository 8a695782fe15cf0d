package fieldnet

import (
	"sort"
	"sync"

	"fieldnet/internal/coordination"
	"fieldnet/internal/logger"
)

// ProgramSpec binds a runnable aggregate program to the columns its
// runs log.
type ProgramSpec struct {
	Name    string
	Program Program
	Columns []logger.Column
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ProgramSpec)
)

// Register adds a named program; later registrations under the same
// name replace earlier ones.
func Register(spec ProgramSpec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[spec.Name] = spec
}

// Lookup resolves a registered program by name.
func Lookup(name string) (ProgramSpec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	spec, ok := registry[name]
	return spec, ok
}

// Names lists the registered programs in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// initialValue reads the device's seeded "value" attribute, falling
// back to its uid so the builtins work without a nodes file.
func initialValue(r *Round) float64 {
	if v, ok := r.Storage.Float("value"); ok {
		return v
	}
	return float64(r.UID)
}

func init() {
	Register(ProgramSpec{
		Name: "gossip-min",
		Program: func(r *Round) error {
			r.Storage.Set("min", coordination.GossipMin(r, 1, initialValue(r)))
			return nil
		},
		Columns: []logger.Column{
			{Tag: "min", Agg: logger.Count},
			{Tag: "min", Agg: logger.Min},
			{Tag: "min", Agg: logger.Max},
		},
	})

	Register(ProgramSpec{
		Name: "abf-distance",
		Program: func(r *Round) error {
			r.Storage.Set("dist", coordination.ABFDistance(r, 1, r.UID == 1))
			return nil
		},
		Columns: []logger.Column{
			{Tag: "dist", Agg: logger.Count},
			{Tag: "dist", Agg: logger.Mean},
			{Tag: "dist", Agg: logger.Max},
		},
	})

	Register(ProgramSpec{
		Name: "collection",
		Program: func(r *Round) error {
			dist := coordination.ABFDistance(r, 1, r.UID == 1)
			total := coordination.SPCollection(r, 2, Float, dist, initialValue(r), 0,
				func(a, b float64) float64 { return a + b })
			r.Storage.Set("dist", dist)
			r.Storage.Set("collected", total)
			return nil
		},
		Columns: []logger.Column{
			{Tag: "collected", Agg: logger.Max},
			{Tag: "dist", Agg: logger.Max},
		},
	})
}
