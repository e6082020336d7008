package hub

import (
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-faceauth/internal/log"
)

// newTestClient registers a client without a websocket connection.
func newTestClient(t *testing.T, h *Hub, buffer int) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan Message, buffer)}
	h.register <- c
	return c
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test", log.Discard())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func waitCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h := startHub(t)
	a := newTestClient(t, h, 4)
	b := newTestClient(t, h, 4)

	waitCount(t, h, 2)

	if err := h.BroadcastJSON(map[string]bool{"face_detected": true}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}
	for _, c := range []*Client{a, b} {
		msg, ok := receive(t, c)
		if !ok || msg.Type != JSONMessage || string(msg.Data) != `{"face_detected":true}` {
			t.Errorf("got %+v (ok=%v)", msg, ok)
		}
	}

	h.BroadcastBinary([]byte{0xff, 0xd8})
	msg, _ := receive(t, a)
	if msg.Type != BinaryMessage || len(msg.Data) != 2 {
		t.Errorf("binary message = %+v", msg)
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := newTestClient(t, h, 1)

	h.unregister <- c
	if _, ok := receive(t, c); ok {
		t.Error("send channel should be closed after unregister")
	}
	waitCount(t, h, 0)
}

func TestSlowClientDropped(t *testing.T) {
	h := startHub(t)
	slow := newTestClient(t, h, 1)

	h.BroadcastBinary([]byte{1})
	h.BroadcastBinary([]byte{2})

	waitCount(t, h, 0)

	if msg, ok := receive(t, slow); !ok || msg.Data[0] != 1 {
		t.Errorf("first message = %+v (ok=%v)", msg, ok)
	}
	if _, ok := receive(t, slow); ok {
		t.Error("send channel should be closed after drop")
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	h := New("test", log.Discard())
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	c := newTestClient(t, h, 1)
	if !h.IsRunning() {
		t.Error("IsRunning() = false while Run is active")
	}

	h.Stop()
	h.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if _, ok := receive(t, c); ok {
		t.Error("send channel should be closed after Stop")
	}
	if h.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestMessageFraming(t *testing.T) {
	if got := NewJSONMessage([]byte("{}")).wsType(); got != websocket.TextMessage {
		t.Errorf("JSON message type = %d, want text", got)
	}
	if got := NewBinaryMessage([]byte{0xff}).wsType(); got != websocket.BinaryMessage {
		t.Errorf("binary message type = %d, want binary", got)
	}
}
