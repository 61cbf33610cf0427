package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portmap-ai/pkg/logging"
	"portmap-ai/pkg/model"
)

// serverConn returns the server side of a fresh websocket connection.
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err == nil {
			conns <- c
		}
	}))
	t.Cleanup(srv.Close)
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	select {
	case c := <-conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
		return nil
	}
}

func TestEventHub_SlowSubscriberIsDropped(t *testing.T) {
	hub := NewEventHub(logging.Discard())
	// no write loop drains this subscriber, so its queue fills up
	stuck := &subscriber{conn: serverConn(t), send: make(chan model.RegistryEvent, subscriberBuffer)}
	hub.mu.Lock()
	hub.subs[stuck] = struct{}{}
	hub.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for i := 0; i <= subscriberBuffer; i++ {
			hub.Publish(model.RegistryEvent{Type: EventHeartbeat, NodeID: "w1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	assert.Equal(t, 0, hub.Subscribers())

	// removal is idempotent
	hub.remove(stuck)
	assert.Equal(t, 0, hub.Subscribers())
}

func TestEventHub_NilPublish(t *testing.T) {
	var hub *EventHub
	assert.NotPanics(t, func() { hub.Publish(model.RegistryEvent{Type: EventRegister}) })
}
