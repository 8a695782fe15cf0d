package connect

import (
	"sync/atomic"

	"fieldnet/internal/device"
	"fieldnet/internal/exchange"
	"fieldnet/internal/model"
)

// Simulated delivers envelopes through the connectivity predicate: on
// round end the sender's export is serialised, and a copy is placed in
// the mailbox of every device the sender can reach, stamped with the
// metric's propagation delay.
type Simulated struct {
	roster  Roster
	conn    Connectivity
	onFault func(model.Fault)

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewSimulated(roster Roster, conn Connectivity, onFault func(model.Fault)) *Simulated {
	if conn == nil {
		conn = Fully{}
	}
	return &Simulated{roster: roster, conn: conn, onFault: onFault}
}

// Broadcast offers the sealed export to every connected receiver. Each
// receiver gets its own decoded copy, so no round ever mutates another
// device's view.
func (s *Simulated) Broadcast(from *device.Node, t model.Time, export *exchange.Export) {
	data := exchange.EncodeEnvelope(from.UID(), t, export)
	s.roster.ForEach(func(rcv *device.Node) {
		if rcv.UID() == from.UID() {
			return
		}
		if !s.conn.Connected(from, rcv) {
			return
		}
		env, err := exchange.DecodeEnvelope(data)
		if err != nil {
			s.dropped.Add(1)
			if s.onFault != nil {
				s.onFault(model.Fault{Kind: model.ErrProtocol, Device: rcv.UID(), Time: t, Err: err})
			}
			return
		}
		env.At = t + s.conn.Delay(from, rcv)
		rcv.Receive(env)
		s.delivered.Add(1)
	})
}

// Delivered counts envelopes placed into mailboxes since start.
func (s *Simulated) Delivered() uint64 { return s.delivered.Load() }

// Dropped counts envelopes discarded as protocol errors.
func (s *Simulated) Dropped() uint64 { return s.dropped.Load() }
