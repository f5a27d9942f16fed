package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/config"
)

// Event names.
const (
	EventSensorUpdate  = "sensor_update"
	EventDeviceStatus  = "device_status"
	EventDeviceControl = "device_control"
)

// Message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeEvent       = "event"
	TypeResponse    = "response"
	TypeError       = "error"
)

const (
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	accessCheckTimeout    = 2 * time.Second
)

// Message is the envelope exchanged with clients.
type Message struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	Event     string   `json:"event,omitempty"`
	Events    []string `json:"events,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Payload   any      `json:"payload,omitempty"`
}

// Logger is the logging dependency of Hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceScoped is implemented by event payloads about a single device.
type DeviceScoped interface {
	ScopedDeviceID() string
}

// AccessFilter reports whether subject may observe events for deviceID.
type AccessFilter func(ctx context.Context, subject auth.Subject, deviceID string) bool

// Metrics receives hub counters. *metrics.Collector satisfies it.
type Metrics interface {
	SetObservers(n int)
	ObserverDropped()
}

type noopMetrics struct{}

func (noopMetrics) SetObservers(int) {}
func (noopMetrics) ObserverDropped() {}

// Hub tracks connected clients and broadcasts events to them.
type Hub struct {
	sendBuffer     int
	maxMessageSize int64
	pingInterval   time.Duration
	pongTimeout    time.Duration

	logger  Logger
	metrics Metrics
	access  AccessFilter

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub from the websocket configuration. Zero values fall
// back to defaults.
func NewHub(cfg config.WebSocketConfig, logger Logger) *Hub {
	h := &Hub{
		sendBuffer:     cfg.SendBuffer,
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongTimeout:    time.Duration(cfg.PongTimeout) * time.Second,
		logger:         logger,
		metrics:        noopMetrics{},
		clients:        make(map[*client]struct{}),
	}
	if h.logger == nil {
		h.logger = noopLogger{}
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	if h.maxMessageSize <= 0 {
		h.maxMessageSize = defaultMaxMessageSize
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultPongTimeout
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Origins are enforced by the CORS middleware in front of the hub.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return h
}

// SetMetrics attaches a metrics sink.
func (h *Hub) SetMetrics(m Metrics) {
	if m != nil {
		h.metrics = m
	}
}

// SetAccessFilter restricts DeviceScoped events to the clients whose
// subject passes f. Without a filter every client receives them.
func (h *Hub) SetAccessFilter(f AccessFilter) {
	h.access = f
}

// Emit broadcasts an event to every interested client. It never waits on a
// slow client.
func (h *Hub) Emit(event string, payload any) {
	data, err := json.Marshal(Message{
		Type:      TypeEvent,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("marshalling event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(event) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range h.permitted(targets, payload) {
		if c.trySend(data) {
			sent++
		} else {
			h.metrics.ObserverDropped()
		}
	}
	if sent > 0 {
		h.logger.Debug("event broadcast", "event", event, "recipients", sent)
	}
}

// permitted drops the clients that may not see the device a scoped payload
// is about. Each user is checked once per event.
func (h *Hub) permitted(targets []*client, payload any) []*client {
	scoped, ok := payload.(DeviceScoped)
	if !ok || h.access == nil || len(targets) == 0 {
		return targets
	}
	deviceID := scoped.ScopedDeviceID()

	ctx, cancel := context.WithTimeout(context.Background(), accessCheckTimeout)
	defer cancel()

	decided := make(map[string]bool, len(targets))
	out := targets[:0]
	for _, c := range targets {
		allowed, seen := decided[c.subject.UserID]
		if !seen {
			allowed = h.access(ctx, c.subject, deviceID)
			decided[c.subject.UserID] = allowed
		}
		if allowed {
			out = append(out, c)
		}
	}
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request to a WebSocket and attaches it to the hub on
// behalf of subject. Authentication happens before Serve is called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, subject auth.Subject) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, subject)
	if !h.register(c) {
		//nolint:errcheck // Best-effort close of a late connection
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
	h.metrics.SetObservers(0)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetObservers(n)
	h.logger.Debug("websocket client connected", "user", c.subject.Username, "clients", n)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.metrics.SetObservers(n)
	h.logger.Debug("websocket client disconnected", "user", c.subject.Username, "clients", n)
}
