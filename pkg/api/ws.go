package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"portmap-ai/pkg/model"
)

// Registry event types.
const (
	EventRegister  = "register"
	EventHeartbeat = "heartbeat"
	EventEnqueue   = "enqueue"
)

// subscriberBuffer is how many events may queue for one dashboard before it is
// dropped as too slow.
const subscriberBuffer = 64

// EventHub streams registry events to read-only dashboard subscribers.
type EventHub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	logger   *slog.Logger
}

type subscriber struct {
	conn *websocket.Conn
	send chan model.RegistryEvent
}

func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs:   map[*subscriber]struct{}{},
		logger: logger,
	}
}

// HandleEvents upgrades the request and registers the connection as a subscriber.
func (h *EventHub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	sub := &subscriber{conn: c, send: make(chan model.RegistryEvent, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("dashboard subscriber connected", "remote", r.RemoteAddr)
	go h.writeLoop(sub)
	go h.readLoop(sub)
}

// Publish queues ev for every subscriber without blocking. A subscriber whose queue
// is full is dropped.
func (h *EventHub) Publish(ev model.RegistryEvent) {
	if h == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- ev:
		default:
			h.logger.Warn("dropping slow dashboard subscriber", "remote", sub.conn.RemoteAddr().String())
			h.removeLocked(sub)
		}
	}
}

// Subscribers returns the number of connected dashboards.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// remove unregisters sub once; later calls are no-ops.
func (h *EventHub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *EventHub) removeLocked(sub *subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
	_ = sub.conn.Close()
}

// writeLoop is the only writer on the connection.
func (h *EventHub) writeLoop(sub *subscriber) {
	for ev := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := sub.conn.WriteJSON(ev); err != nil {
			h.remove(sub)
			return
		}
	}
}

// readLoop discards client frames and unregisters on close.
func (h *EventHub) readLoop(sub *subscriber) {
	defer func() {
		h.remove(sub)
		h.logger.Info("dashboard subscriber disconnected")
	}()
	for {
		if _, _, err := sub.conn.NextReader(); err != nil {
			return
		}
	}
}
