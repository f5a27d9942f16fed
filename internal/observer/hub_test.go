package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/config"
)

type countingMetrics struct {
	mu      sync.Mutex
	last    int
	dropped int
}

func (m *countingMetrics) SetObservers(n int) {
	m.mu.Lock()
	m.last = n
	m.mu.Unlock()
}

func (m *countingMetrics) ObserverDropped() {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

func (m *countingMetrics) observers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{PingInterval: 30, PongTimeout: 10}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, auth.Subject{UserID: "u1", Username: "alice"})
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func TestHub_EmitReachesAllClients(t *testing.T) {
	hub, srv := newTestHub(t)
	metrics := &countingMetrics{}
	hub.SetMetrics(metrics)

	a := dial(t, srv)
	b := dial(t, srv)
	waitForClients(t, hub, 2)

	if metrics.observers() != 2 {
		t.Errorf("observer gauge = %d, want 2", metrics.observers())
	}

	hub.Emit(EventSensorUpdate, map[string]any{"device_id": "temp_1", "value": 22.3})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		if msg.Type != TypeEvent || msg.Event != EventSensorUpdate {
			t.Errorf("message = %+v", msg)
		}
		payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // Checked below
		if payload["device_id"] != "temp_1" || payload["value"] != 22.3 {
			t.Errorf("payload = %v", msg.Payload)
		}
	}
}

func TestHub_SubscriptionFilter(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	sub, _ := json.Marshal(Message{Type: TypeSubscribe, ID: "1", Events: []string{EventDeviceStatus}}) //nolint:errcheck // Static message
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatal(err)
	}
	resp := readMessage(t, conn)
	if resp.Type != TypeResponse || resp.ID != "1" || len(resp.Events) != 1 {
		t.Fatalf("subscribe response = %+v", resp)
	}

	hub.Emit(EventSensorUpdate, map[string]any{"value": 1})
	hub.Emit(EventDeviceStatus, map[string]any{"status": "online"})

	msg := readMessage(t, conn)
	if msg.Event != EventDeviceStatus {
		t.Errorf("first event = %q, want device_status only", msg.Event)
	}
}

func TestHub_PingAndBadMessage(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","id":"p"}`)) //nolint:errcheck // Test write
	if msg := readMessage(t, conn); msg.Type != TypePong || msg.ID != "p" {
		t.Errorf("ping reply = %+v", msg)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`not json`)) //nolint:errcheck // Test write
	if msg := readMessage(t, conn); msg.Type != TypeError {
		t.Errorf("bad message reply = %+v", msg)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	hub.Emit(EventSensorUpdate, nil)
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	hub.Close()
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() after Close() = %d", hub.ClientCount())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected closed connection after hub Close()")
	}

	late := dial(t, srv)
	late.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("expected late connection to be closed")
	}
}

func TestClient_TrySendFullBuffer(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{SendBuffer: 1}, nil)
	metrics := &countingMetrics{}
	hub.SetMetrics(metrics)

	c := newClient(hub, nil, auth.Subject{})
	hub.clients[c] = struct{}{}

	hub.Emit(EventSensorUpdate, nil)
	hub.Emit(EventSensorUpdate, nil)

	if metrics.dropped != 1 {
		t.Errorf("dropped = %d, want 1", metrics.dropped)
	}

	c.close()
	if c.trySend([]byte("x")) {
		t.Error("trySend() on closed client = true")
	}
}

type scopedPayload struct {
	DeviceID string `json:"device_id"`
}

func (p scopedPayload) ScopedDeviceID() string { return p.DeviceID }

func TestHub_AccessFilter(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)
	owner := newClient(hub, nil, auth.Subject{UserID: "owner"})
	ownerTab := newClient(hub, nil, auth.Subject{UserID: "owner"})
	stranger := newClient(hub, nil, auth.Subject{UserID: "stranger"})
	for _, c := range []*client{owner, ownerTab, stranger} {
		hub.clients[c] = struct{}{}
	}

	var checks int
	hub.SetAccessFilter(func(_ context.Context, subject auth.Subject, deviceID string) bool {
		checks++
		return subject.UserID == "owner" && deviceID == "temp_1"
	})

	hub.Emit(EventSensorUpdate, scopedPayload{DeviceID: "temp_1"})
	if len(owner.send) != 1 || len(ownerTab.send) != 1 || len(stranger.send) != 0 {
		t.Errorf("scoped event queued owner=%d tab=%d stranger=%d, want 1/1/0",
			len(owner.send), len(ownerTab.send), len(stranger.send))
	}
	if checks != 2 {
		t.Errorf("access checks = %d, want one per user", checks)
	}

	hub.Emit(EventDeviceStatus, scopedPayload{DeviceID: "other"})
	if len(owner.send) != 1 || len(stranger.send) != 0 {
		t.Error("event for an inaccessible device was delivered")
	}

	hub.Emit(EventSensorUpdate, map[string]any{"note": "unscoped"})
	if len(owner.send) != 2 || len(stranger.send) != 1 {
		t.Errorf("unscoped event queued owner=%d stranger=%d, want 2/1", len(owner.send), len(stranger.send))
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	c := newClient(NewHub(config.WebSocketConfig{}, nil), nil, auth.Subject{})
	c.unsubscribe([]string{EventSensorUpdate})
	if c.wants(EventSensorUpdate) || !c.wants(EventDeviceStatus) {
		t.Errorf("after unsubscribe: events = %v", c.subscribed())
	}
	c.subscribe(nil)
	if !c.wants(EventSensorUpdate) {
		t.Error("subscribe(nil) should restore all events")
	}
}
