package connect

import (
	"sync"
	"time"

	"fieldnet/internal/model"
)

// LoopbackHub is an in-memory radio medium for tests and single-host
// deployments: every frame sent by a member is offered to every other
// member. FailSend, when set, injects send failures.
type LoopbackHub struct {
	mu       sync.Mutex
	members  map[model.DeviceID]chan Message
	FailSend func(from model.DeviceID, attempt int) bool
}

func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{members: make(map[model.DeviceID]chan Message)}
}

// Join registers a device on the medium and returns its transceiver.
func (h *LoopbackHub) Join(uid model.DeviceID) *LoopbackTransceiver {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Message, 64)
	h.members[uid] = ch
	return &LoopbackTransceiver{hub: h, uid: uid, inbox: ch, ReceiveWait: time.Millisecond}
}

func (h *LoopbackHub) send(from model.DeviceID, frame []byte, attempt int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailSend != nil && h.FailSend(from, attempt) {
		return false
	}
	for id, ch := range h.members {
		if id == from {
			continue
		}
		msg := Message{From: from, Content: append([]byte(nil), frame...)}
		select {
		case ch <- msg:
		default: // receiver lagging; the medium is lossy
		}
	}
	return true
}

// LoopbackTransceiver implements Transceiver over a LoopbackHub.
type LoopbackTransceiver struct {
	hub   *LoopbackHub
	uid   model.DeviceID
	inbox chan Message

	// ReceiveWait is the base listen window; it grows linearly with
	// the number of consecutive failed sends.
	ReceiveWait time.Duration
}

func (t *LoopbackTransceiver) Send(from model.DeviceID, frame []byte, attempt int) bool {
	return t.hub.send(from, frame, attempt)
}

func (t *LoopbackTransceiver) Receive(attempt int) (Message, bool) {
	wait := t.ReceiveWait * time.Duration(attempt+1)
	select {
	case msg := <-t.inbox:
		return msg, true
	case <-time.After(wait):
		return Message{}, false
	}
}
