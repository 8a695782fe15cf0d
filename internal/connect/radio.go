package connect

import (
	"sync"
	"sync/atomic"

	"fieldnet/internal/device"
	"fieldnet/internal/exchange"
	"fieldnet/internal/model"
)

// Message is one raw frame received from a transceiver. The radio
// worker fills Time and From after decoding the envelope; Power is an
// optional signal estimate supplied by the hardware.
type Message struct {
	Time    model.Time
	From    model.DeviceID
	Power   float64
	Content []byte
}

// Transceiver is the low-level radio interface. Send broadcasts a
// frame after the given number of failed attempts and reports success;
// Receive listens for one frame, blocking with a backoff that grows
// with consecutive failed sends.
type Transceiver interface {
	Send(from model.DeviceID, frame []byte, attempt int) bool
	Receive(attempt int) (Message, bool)
}

// Radio is the per-device background worker of real mode. It retries
// the pending outbound frame until the transceiver accepts it, stamps
// each frame with the one-byte relative send delay, and back-dates
// received envelopes by the delay byte they carry.
type Radio struct {
	node    *device.Node
	trx     Transceiver
	clock   func() model.Time
	onFault func(model.Fault)

	mu       sync.Mutex
	pending  []byte
	sendTime model.Time
	attempt  int

	sendFailures  atomic.Uint64
	protocolDrops atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

func NewRadio(node *device.Node, trx Transceiver, clock func() model.Time, onFault func(model.Fault)) *Radio {
	r := &Radio{
		node:    node,
		trx:     trx,
		clock:   clock,
		onFault: onFault,
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.manage()
	return r
}

// Send schedules an envelope frame for broadcast, replacing any frame
// still awaiting a successful send: only the freshest round matters.
func (r *Radio) Send(frame []byte) {
	r.mu.Lock()
	r.pending = frame
	r.sendTime = r.clock()
	r.attempt = 0
	r.mu.Unlock()
}

// SendFailures counts transceiver send attempts that failed.
func (r *Radio) SendFailures() uint64 { return r.sendFailures.Load() }

// ProtocolDrops counts received frames discarded as malformed.
func (r *Radio) ProtocolDrops() uint64 { return r.protocolDrops.Load() }

// Close stops the worker and joins it.
func (r *Radio) Close() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.wg.Wait()
}

func (r *Radio) manage() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.Lock()
		attempt := r.attempt
		if r.pending != nil {
			frame := exchange.AppendDelay(r.pending, r.clock()-r.sendTime)
			if r.trx.Send(r.node.UID(), frame, r.attempt) {
				r.pending = nil
				r.attempt = 0
			} else {
				r.attempt++
				r.sendFailures.Add(1)
				if r.onFault != nil {
					r.onFault(model.Fault{
						Kind:   model.ErrTransport,
						Device: r.node.UID(),
						Time:   r.clock(),
						Err:    model.ErrTransport,
					})
				}
			}
			attempt = r.attempt
		}
		r.mu.Unlock()

		msg, ok := r.trx.Receive(attempt)
		if !ok || len(msg.Content) == 0 {
			continue
		}
		r.deliver(msg)
	}
}

func (r *Radio) deliver(msg Message) {
	body, dt, err := exchange.SplitDelay(msg.Content)
	if err != nil {
		r.drop(err)
		return
	}
	env, err := exchange.DecodeEnvelope(body)
	if err != nil {
		r.drop(err)
		return
	}
	env.At = r.clock() - dt
	r.node.Receive(env)
}

func (r *Radio) drop(err error) {
	r.protocolDrops.Add(1)
	if r.onFault != nil {
		r.onFault(model.Fault{
			Kind:   model.ErrProtocol,
			Device: r.node.UID(),
			Time:   r.clock(),
			Err:    err,
		})
	}
}
