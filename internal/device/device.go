// Package device holds the per-device state: uid, storage tuple,
// context, most recent export, position, schedule cursor and mailbox.
package device

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"fieldnet/internal/exchange"
	"fieldnet/internal/model"
	"fieldnet/internal/sequence"
)

// State is the device lifecycle: Created until the first scheduled
// round, Live while rounds execute, Retired after erasure or net
// shutdown.
type State int32

const (
	Created State = iota
	Live
	Retired
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Live:
		return "live"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// Config carries everything needed to emplace a node.
type Config struct {
	UID          model.DeviceID
	Schedule     sequence.Generator
	RetainWindow model.Time
	StorageTags  []string
	Position     []float64
	Velocity     []float64
	Seed         int64
}

// Node is one device. The round executing on a node holds its lock.
// The state word, the position and the mailbox are read by concurrent
// broadcasts from other devices' rounds, so each has its own
// synchronization instead of the round lock.
type Node struct {
	uid model.DeviceID

	mu       sync.Mutex
	storage  *model.Storage
	ctx      *exchange.Context
	export   *exchange.Export
	schedule sequence.Generator
	rng      *rand.Rand

	state atomic.Int32

	posMu    sync.Mutex
	position []float64
	velocity []float64
	lastMove model.Time

	mailbox Mailbox
}

func New(cfg Config) *Node {
	schedule := cfg.Schedule
	if schedule == nil {
		schedule = sequence.Never{}
	}
	return &Node{
		uid:      cfg.UID,
		storage:  model.NewStorage(cfg.StorageTags...),
		ctx:      exchange.NewContext(cfg.UID, cfg.RetainWindow),
		position: append([]float64(nil), cfg.Position...),
		velocity: append([]float64(nil), cfg.Velocity...),
		schedule: schedule,
		rng:      rand.New(rand.NewSource(deriveSeed(cfg.Seed, cfg.UID))),
	}
}

// deriveSeed mixes the net seed with the uid, so every device draws
// from its own stream and parallel execution stays reproducible.
func deriveSeed(seed int64, uid model.DeviceID) int64 {
	x := uint64(seed) ^ (uint64(uid)+1)*0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return int64(x ^ (x >> 31))
}

func (n *Node) UID() model.DeviceID { return n.uid }

// Lock grants exclusive round access; the scheduler holds it for the
// duration of one round.
func (n *Node) Lock()   { n.mu.Lock() }
func (n *Node) Unlock() { n.mu.Unlock() }

// Lifecycle state is atomic: broadcasts from concurrent rounds probe
// it through Receive without taking the round lock.

func (n *Node) State() State { return State(n.state.Load()) }

func (n *Node) BecomeLive() {
	n.state.CompareAndSwap(int32(Created), int32(Live))
}

func (n *Node) Retire() { n.state.Store(int32(Retired)) }

// Receive appends a neighbour envelope to the mailbox. Safe from any
// goroutine; retired devices drop traffic.
func (n *Node) Receive(env exchange.Envelope) {
	if n.State() == Retired {
		return
	}
	n.mailbox.Push(env)
}

// DrainMailbox moves pending envelopes out of the mailbox; the round
// driver records them into the context before running the body.
func (n *Node) DrainMailbox() []exchange.Envelope { return n.mailbox.Drain() }

func (n *Node) Context() *exchange.Context { return n.ctx }

func (n *Node) Export() *exchange.Export { return n.export }

// SetExport publishes the round's sealed export as the node's most
// recent outbound message.
func (n *Node) SetExport(e *exchange.Export) {
	if e != nil && !e.Sealed() {
		panic(model.Invariantf("device %d published an unsealed export", n.uid))
	}
	n.export = e
}

func (n *Node) Storage() *model.Storage { return n.storage }

func (n *Node) RNG() *rand.Rand { return n.rng }

// StorageTuple snapshots the user state for loggers.
func (n *Node) StorageTuple() map[string]any { return n.storage.Snapshot() }

// Next returns the node's earliest future event: its next scheduled
// round.
func (n *Node) Next() model.Time {
	if n.State() == Retired {
		return model.TimeNever
	}
	return n.schedule.Next()
}

// AdvanceSchedule consumes the current wake-up after a round.
func (n *Node) AdvanceSchedule() { n.schedule.Advance(n.rng) }

// Position and velocity take their own lock: connectivity predicates
// read a neighbour's position while that neighbour's round may be
// moving it.

func (n *Node) Position() []float64 {
	n.posMu.Lock()
	defer n.posMu.Unlock()
	return append([]float64(nil), n.position...)
}

func (n *Node) Velocity() []float64 {
	n.posMu.Lock()
	defer n.posMu.Unlock()
	return append([]float64(nil), n.velocity...)
}

func (n *Node) SetVelocity(v []float64) {
	n.posMu.Lock()
	defer n.posMu.Unlock()
	n.velocity = append([]float64(nil), v...)
}

// UpdateKinematics advances the position along the velocity up to t.
// Round drivers call it at round start on spatial nets.
func (n *Node) UpdateKinematics(t model.Time) {
	n.posMu.Lock()
	defer n.posMu.Unlock()
	if len(n.velocity) == 0 || len(n.position) == 0 {
		n.lastMove = t
		return
	}
	dt := t - n.lastMove
	if dt <= 0 {
		return
	}
	for i := range n.position {
		if i < len(n.velocity) {
			n.position[i] += n.velocity[i] * dt
		}
	}
	n.lastMove = t
}

// Mailbox is a lock-protected append-only queue of incoming
// envelopes: multi-writer, single-reader.
type Mailbox struct {
	mu    sync.Mutex
	queue []exchange.Envelope
}

func (m *Mailbox) Push(env exchange.Envelope) {
	m.mu.Lock()
	m.queue = append(m.queue, env)
	m.mu.Unlock()
}

func (m *Mailbox) Drain() []exchange.Envelope {
	m.mu.Lock()
	out := m.queue
	m.queue = nil
	m.mu.Unlock()
	return out
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
