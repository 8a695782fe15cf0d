package connect

import (
	"testing"

	"fieldnet/internal/device"
	"fieldnet/internal/exchange"
	"fieldnet/internal/model"
)

type sliceRoster []*device.Node

func (r sliceRoster) Resolve(id model.DeviceID) (*device.Node, bool) {
	for _, n := range r {
		if n.UID() == id {
			return n, true
		}
	}
	return nil, false
}

func (r sliceRoster) ForEach(fn func(*device.Node)) {
	for _, n := range r {
		fn(n)
	}
}

func sealedExport(v float64) *exchange.Export {
	e := exchange.NewExport()
	e.Set(1, exchange.TagFloat, exchange.Float.Append(nil, v))
	e.Seal()
	return e
}

func spawn(uid model.DeviceID, pos ...float64) *device.Node {
	return device.New(device.Config{UID: uid, RetainWindow: 100, Position: pos})
}

func TestBroadcastReachesConnectedDevicesOnly(t *testing.T) {
	a, b, c := spawn(1, 0, 0), spawn(2, 1, 0), spawn(3, 9, 0)
	roster := sliceRoster{a, b, c}
	sim := NewSimulated(roster, Disk{Radius: 2}, nil)

	sim.Broadcast(a, 5, sealedExport(7))

	if a.DrainMailbox() != nil {
		t.Fatal("expected no self delivery")
	}
	got := b.DrainMailbox()
	if len(got) != 1 {
		t.Fatalf("expected one envelope at device 2, got=%d", len(got))
	}
	env := got[0]
	if env.From != 1 || env.SendTime != 5 || env.At != 5 {
		t.Fatalf("unexpected envelope header: %+v", env)
	}
	if v, ok, err := exchange.Value(env.Export, 1, exchange.Float); err != nil || !ok || v != 7 {
		t.Fatalf("payload mismatch: v=%v ok=%v err=%v", v, ok, err)
	}
	if c.DrainMailbox() != nil {
		t.Fatal("expected device 3 out of radius to hear nothing")
	}
	if sim.Delivered() != 1 {
		t.Fatalf("expected 1 delivery counted, got=%d", sim.Delivered())
	}
}

func TestBroadcastAppliesMetricDelay(t *testing.T) {
	a, b := spawn(1, 0, 0), spawn(2, 3, 4)
	sim := NewSimulated(sliceRoster{a, b}, Disk{Radius: 10, Speed: 5}, nil)
	sim.Broadcast(a, 2, sealedExport(1))
	got := b.DrainMailbox()
	if len(got) != 1 {
		t.Fatalf("expected one envelope, got=%d", len(got))
	}
	if got[0].At != 3 { // distance 5 at speed 5
		t.Fatalf("expected reception at t=3, got=%v", got[0].At)
	}
}

func TestGraphConnectivityIsDirected(t *testing.T) {
	a, b := spawn(1), spawn(2)
	g := NewGraph()
	g.AddArc(1, 2)
	sim := NewSimulated(sliceRoster{a, b}, g, nil)

	sim.Broadcast(a, 0, sealedExport(1))
	if len(b.DrainMailbox()) != 1 {
		t.Fatal("expected arc 1->2 to deliver")
	}
	sim.Broadcast(b, 0, sealedExport(2))
	if a.DrainMailbox() != nil {
		t.Fatal("expected no reverse delivery on a directed arc")
	}
}
