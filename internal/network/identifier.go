// Package network owns the device population and the event-driven
// scheduler that wakes devices for rounds and fires global event
// sources.
package network

import (
	"slices"
	"sync"

	"fieldnet/internal/device"
	"fieldnet/internal/model"
)

// Identifier owns every device in an arena keyed by uid. Neighbour
// references are uids resolved through the arena on use, which keeps
// the device graph free of ownership cycles.
type Identifier struct {
	mu    sync.RWMutex
	nodes map[model.DeviceID]*device.Node
}

func NewIdentifier() *Identifier {
	return &Identifier{nodes: make(map[model.DeviceID]*device.Node)}
}

// NodeEmplace adds a device to the population. Two live devices
// sharing a uid is an invariant violation.
func (i *Identifier) NodeEmplace(n *device.Node) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if prev, ok := i.nodes[n.UID()]; ok && prev.State() != device.Retired {
		return model.Invariantf("duplicate live device uid %d", n.UID())
	}
	i.nodes[n.UID()] = n
	return nil
}

// NodeErase retires a device and removes it from the arena.
func (i *Identifier) NodeErase(id model.DeviceID) bool {
	i.mu.Lock()
	n, ok := i.nodes[id]
	if ok {
		delete(i.nodes, id)
	}
	i.mu.Unlock()
	if !ok {
		return false
	}
	// retire outside the arena lock: a concurrent round holds the node
	// lock while broadcasting through the arena
	n.Lock()
	n.Retire()
	n.Unlock()
	return true
}

func (i *Identifier) Resolve(id model.DeviceID) (*device.Node, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	n, ok := i.nodes[id]
	return n, ok
}

// ForEach visits the population in ascending uid order.
func (i *Identifier) ForEach(fn func(n *device.Node)) {
	for _, id := range i.IDs() {
		if n, ok := i.Resolve(id); ok {
			fn(n)
		}
	}
}

func (i *Identifier) IDs() []model.DeviceID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ids := make([]model.DeviceID, 0, len(i.nodes))
	for id := range i.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (i *Identifier) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.nodes)
}
