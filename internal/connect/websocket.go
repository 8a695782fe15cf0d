package connect

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fieldnet/internal/model"
)

// WSConfig configures a websocket transceiver.
type WSConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	ReceiveWait      time.Duration // base listen window
	MaxWait          time.Duration // cap for the send-failure backoff
}

func (c WSConfig) withDefaults() WSConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReceiveWait <= 0 {
		c.ReceiveWait = 5 * time.Millisecond
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Second
	}
	return c
}

// WSTransceiver carries radio frames over a websocket connection to a
// relay hub. A background reader pumps inbound frames into a channel,
// so Receive can time out without poisoning the connection.
type WSTransceiver struct {
	cfg  WSConfig
	conn *websocket.Conn

	writeMu sync.Mutex
	inbox   chan []byte
	closed  chan struct{}
	once    sync.Once
}

// DialWS connects a transceiver to a hub.
func DialWS(ctx context.Context, cfg WSConfig) (*WSTransceiver, error) {
	cfg = cfg.withDefaults()
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", model.ErrTransport, cfg.URL, err)
	}
	t := &WSTransceiver{
		cfg:    cfg,
		conn:   conn,
		inbox:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransceiver) readLoop() {
	defer t.Close()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case t.inbox <- data:
		case <-t.closed:
			return
		}
	}
}

func (t *WSTransceiver) Send(_ model.DeviceID, frame []byte, _ int) bool {
	select {
	case <-t.closed:
		return false
	default:
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, frame) == nil
}

func (t *WSTransceiver) Receive(attempt int) (Message, bool) {
	wait := t.cfg.ReceiveWait * time.Duration(attempt+1)
	if wait > t.cfg.MaxWait {
		wait = t.cfg.MaxWait
	}
	select {
	case data := <-t.inbox:
		return Message{Content: data}, true
	case <-t.closed:
		return Message{}, false
	case <-time.After(wait):
		return Message{}, false
	}
}

func (t *WSTransceiver) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

// Hub is a websocket relay: every binary frame received from one
// client is forwarded to all other clients. It stands in for the
// shared radio medium when devices run on real transports.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	go h.relay(conn)
}

func (h *Hub) relay(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		h.broadcast(conn, data)
	}
}

func (h *Hub) broadcast(sender *websocket.Conn, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if c == sender {
			continue
		}
		_ = c.WriteMessage(websocket.BinaryMessage, data)
	}
}
