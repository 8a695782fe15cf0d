// Package connect moves serialised context snapshots between devices:
// a simulated connector driven by a connectivity predicate, and a
// real-mode radio worker over a pluggable transceiver.
package connect

import (
	"math"
	"sync"

	"fieldnet/internal/device"
	"fieldnet/internal/model"
)

// Roster resolves device ids to nodes. The identifier implements it;
// neighbour references stay uid-based, never raw cross-device
// pointers.
type Roster interface {
	Resolve(id model.DeviceID) (*device.Node, bool)
	ForEach(fn func(n *device.Node))
}

// Connectivity decides which pairs of devices can hear each other and
// with what propagation delay.
type Connectivity interface {
	Connected(a, b *device.Node) bool
	Delay(a, b *device.Node) model.Time
}

// Fully connects every pair of devices, with a fixed propagation lag.
type Fully struct {
	Lag model.Time
}

func (f Fully) Connected(_, _ *device.Node) bool { return true }

func (f Fully) Delay(_, _ *device.Node) model.Time { return f.Lag }

// Disk connects devices within a Euclidean radius of each other; the
// metric doubles as a propagation delay when Speed is non-zero.
type Disk struct {
	Radius float64
	Speed  float64 // distance units per time unit; zero means instant
}

func (d Disk) Connected(a, b *device.Node) bool {
	return distance(a.Position(), b.Position()) <= d.Radius
}

func (d Disk) Delay(a, b *device.Node) model.Time {
	if d.Speed <= 0 {
		return 0
	}
	return distance(a.Position(), b.Position()) / d.Speed
}

func distance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Graph connects devices along an explicit arc set, as loaded from an
// arcs file. Arcs are directed; add both directions for undirected
// links.
type Graph struct {
	Lag model.Time

	mu   sync.RWMutex
	arcs map[model.DeviceID]map[model.DeviceID]struct{}
}

func NewGraph() *Graph {
	return &Graph{arcs: make(map[model.DeviceID]map[model.DeviceID]struct{})}
}

func (g *Graph) AddArc(from, to model.DeviceID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.arcs[from] == nil {
		g.arcs[from] = make(map[model.DeviceID]struct{})
	}
	g.arcs[from][to] = struct{}{}
}

func (g *Graph) Connected(a, b *device.Node) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.arcs[a.UID()][b.UID()]
	return ok
}

func (g *Graph) Delay(_, _ *device.Node) model.Time { return g.Lag }
