package network

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"fieldnet/internal/connect"
	"fieldnet/internal/device"
	"fieldnet/internal/engine"
	"fieldnet/internal/model"
	"fieldnet/internal/sequence"
	"fieldnet/internal/trace"
)

// Hooks receive structured incident reports. Round, transport and
// protocol faults are reported here and never interrupt the
// scheduler. On parallel nets the callbacks run on worker goroutines,
// possibly concurrently; implementations must be safe for that.
type Hooks struct {
	OnFault func(model.Fault)
}

// Config assembles a net.
type Config struct {
	Seed         int64
	RetainWindow model.Time
	Deadline     model.Time // stop once the next event passes this; zero drains the queue
	Epsilon      model.Time // front-group tolerance for parallel batches
	Workers      int
	Parallel     bool
	Connectivity connect.Connectivity
	Program      engine.Program
	Hooks        Hooks
}

// Net owns the device population, the global event queue, the random
// generator and the connector.
type Net struct {
	cfg       Config
	ident     *Identifier
	connector *connect.Simulated
	rng       *rand.Rand
	queue     eventQueue
	sources   []*eventSource
}

type eventKind int

const (
	kindRound eventKind = iota
	kindSource
)

type event struct {
	time   model.Time
	kind   eventKind
	uid    model.DeviceID // device uid, or source index
	node   *device.Node
	source *eventSource
}

type eventSource struct {
	name string
	gen  sequence.Generator
	fire func(t model.Time) error
	idx  model.DeviceID
}

// eventQueue orders events by time, then devices before global
// sources, then ascending uid — so runs are reproducible given the
// same seed and initial state.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(a, b int) bool {
	if q[a].time != q[b].time {
		return q[a].time < q[b].time
	}
	if q[a].kind != q[b].kind {
		return q[a].kind < q[b].kind
	}
	return q[a].uid < q[b].uid
}

func (q eventQueue) Swap(a, b int) { q[a], q[b] = q[b], q[a] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

func New(cfg Config) *Net {
	if cfg.RetainWindow <= 0 {
		cfg.RetainWindow = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	n := &Net{
		cfg:   cfg,
		ident: NewIdentifier(),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
	n.connector = connect.NewSimulated(n.ident, cfg.Connectivity, n.fault)
	heap.Init(&n.queue)
	return n
}

func (n *Net) Identifier() *Identifier { return n.ident }

// RNG is the net-level generator, used for spawning decisions; devices
// draw from their own derived streams.
func (n *Net) RNG() *rand.Rand { return n.rng }

func (n *Net) fault(f model.Fault) {
	if n.cfg.Hooks.OnFault != nil {
		n.cfg.Hooks.OnFault(f)
	}
}

// AddNode emplaces a device and schedules its first round.
func (n *Net) AddNode(cfg device.Config) (*device.Node, error) {
	cfg.RetainWindow = n.cfg.RetainWindow
	cfg.Seed = n.cfg.Seed
	nd := device.New(cfg)
	if err := n.ident.NodeEmplace(nd); err != nil {
		return nil, err
	}
	if next := nd.Next(); next != model.TimeNever {
		heap.Push(&n.queue, &event{time: next, kind: kindRound, uid: nd.UID(), node: nd})
	}
	return nd, nil
}

// EraseNode retires a device; any queued wake-up for it becomes a
// no-op.
func (n *Net) EraseNode(id model.DeviceID) bool {
	return n.ident.NodeErase(id)
}

// AddSource registers a global event source (log ticks, spawners,
// external I/O) on the shared queue.
func (n *Net) AddSource(name string, gen sequence.Generator, fire func(t model.Time) error) {
	src := &eventSource{name: name, gen: gen, fire: fire, idx: model.DeviceID(len(n.sources))}
	n.sources = append(n.sources, src)
	if next := gen.Next(); next != model.TimeNever {
		heap.Push(&n.queue, &event{time: next, kind: kindSource, uid: src.idx, source: src})
	}
}

// DeviceSnapshot is one device's storage tuple at a point in time.
type DeviceSnapshot struct {
	UID    model.DeviceID
	Values map[string]any
}

// Snapshots captures every live device's storage in ascending uid
// order.
func (n *Net) Snapshots() []DeviceSnapshot {
	var out []DeviceSnapshot
	n.ident.ForEach(func(nd *device.Node) {
		nd.Lock()
		defer nd.Unlock()
		out = append(out, DeviceSnapshot{UID: nd.UID(), Values: nd.StorageTuple()})
	})
	return out
}

// Run drains the event queue until the deadline, the queue empties, or
// the context is cancelled. In-flight rounds always complete; workers
// are joined before Run returns. Only configuration and invariant
// errors surface here.
func (n *Net) Run(ctx context.Context) error {
	if n.cfg.Program == nil {
		return fmt.Errorf("%w: net has no program", model.ErrConfig)
	}
	if n.cfg.Parallel {
		return n.runParallel(ctx)
	}
	return n.runSequential(ctx)
}

func (n *Net) runSequential(ctx context.Context) error {
	stack := trace.New()
	for n.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		it := heap.Pop(&n.queue).(*event)
		if n.cfg.Deadline > 0 && it.time > n.cfg.Deadline {
			return nil
		}
		switch it.kind {
		case kindRound:
			if err := n.runRound(it.node, it.time, stack); err != nil {
				return err
			}
			n.reschedule(it.node)
		case kindSource:
			if err := n.fireSource(it.source, it.time); err != nil {
				return err
			}
		}
	}
	return nil
}

// runParallel executes front-groups of round events on a worker pool.
// Rounds in one group run concurrently; per-device state is protected
// by the device lock and all cross-device writes go through mailboxes.
func (n *Net) runParallel(ctx context.Context) error {
	stacks := make([]*trace.Stack, n.cfg.Workers)
	for i := range stacks {
		stacks[i] = trace.New()
	}
	for n.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		first := heap.Pop(&n.queue).(*event)
		if n.cfg.Deadline > 0 && first.time > n.cfg.Deadline {
			return nil
		}
		if first.kind == kindSource {
			if err := n.fireSource(first.source, first.time); err != nil {
				return err
			}
			continue
		}
		batch := []*event{first}
		for n.queue.Len() > 0 {
			next := n.queue[0]
			if next.kind != kindRound || next.time > first.time+n.cfg.Epsilon {
				break
			}
			batch = append(batch, heap.Pop(&n.queue).(*event))
		}
		if err := n.executeBatch(batch, stacks); err != nil {
			return err
		}
		for _, it := range batch {
			n.reschedule(it.node)
		}
	}
	return nil
}

func (n *Net) executeBatch(batch []*event, stacks []*trace.Stack) error {
	if len(batch) == 1 {
		return n.runRound(batch[0].node, batch[0].time, stacks[0])
	}
	jobs := make(chan *event)
	results := make(chan error, len(batch))
	workers := n.cfg.Workers
	if workers > len(batch) {
		workers = len(batch)
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(stack *trace.Stack) {
			defer wg.Done()
			for it := range jobs {
				results <- n.runRound(it.node, it.time, stack)
			}
		}(stacks[w])
	}
	for _, it := range batch {
		jobs <- it
	}
	close(jobs)
	wg.Wait()
	close(results)
	for err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

// runRound executes one round on one device: drain the mailbox into
// the context, evict stale neighbours, evaluate the program, publish
// and broadcast the new export. The context only admits envelopes that
// arrived strictly before the round starts; later arrivals wait in the
// mailbox, so simultaneous rounds never observe each other and
// sequential and parallel execution agree.
func (n *Net) runRound(nd *device.Node, t model.Time, stack *trace.Stack) error {
	nd.Lock()
	defer nd.Unlock()
	if nd.State() == device.Retired {
		return nil
	}
	nd.BecomeLive()
	nd.UpdateKinematics(t)

	for _, env := range nd.DrainMailbox() {
		if env.At >= t {
			nd.Receive(env)
			continue
		}
		nd.Context().Insert(env.From, env.At, env.Export, t)
	}
	nd.Context().CollectOld(t)

	r := engine.NewRound(nd.UID(), t, stack, nd.Context(), nd.Export(), nd.Storage(), nd.RNG())
	out, err := engine.Execute(r, n.cfg.Program)
	if err != nil {
		if errors.Is(err, model.ErrInvariant) {
			return err
		}
		n.fault(model.Fault{Kind: model.ErrRound, Device: nd.UID(), Time: t, Err: err})
	} else {
		nd.SetExport(out)
		n.connector.Broadcast(nd, t, out)
	}
	nd.AdvanceSchedule()
	return nil
}

func (n *Net) reschedule(nd *device.Node) {
	if next := nd.Next(); next != model.TimeNever {
		heap.Push(&n.queue, &event{time: next, kind: kindRound, uid: nd.UID(), node: nd})
	}
}

func (n *Net) fireSource(src *eventSource, t model.Time) error {
	if src.fire != nil {
		if err := src.fire(t); err != nil {
			return fmt.Errorf("source %s at %v: %w", src.name, t, err)
		}
	}
	src.gen.Advance(n.rng)
	if next := src.gen.Next(); next != model.TimeNever {
		heap.Push(&n.queue, &event{time: next, kind: kindSource, uid: src.idx, source: src})
	}
	return nil
}
