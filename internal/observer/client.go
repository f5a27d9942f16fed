package observer

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homewatch-core/internal/auth"
)

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	subject auth.Subject

	mu     sync.Mutex
	send   chan []byte
	closed bool

	// nil means every event.
	events map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn, subject auth.Subject) *client {
	return &client{
		hub:     h,
		conn:    conn,
		subject: subject,
		send:    make(chan []byte, h.sendBuffer),
	}
}

func (c *client) wants(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		return true
	}
	_, ok := c.events[event]
	return ok
}

// trySend queues data without blocking. It reports false when the buffer
// is full or the client is gone.
func (c *client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	deadline := c.hub.pingInterval + c.hub.pongTimeout
	c.conn.SetReadLimit(c.hub.maxMessageSize)
	//nolint:errcheck // Best-effort deadline
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "user", c.subject.Username, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handle(data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			//nolint:errcheck // Write error is caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Write error is caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handle(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(Message{Type: TypeError, Payload: map[string]string{"message": "invalid JSON message"}})
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		c.subscribe(msg.Events)
		c.reply(Message{Type: TypeResponse, ID: msg.ID, Events: c.subscribed()})
	case TypeUnsubscribe:
		c.unsubscribe(msg.Events)
		c.reply(Message{Type: TypeResponse, ID: msg.ID, Events: c.subscribed()})
	case TypePing:
		c.reply(Message{Type: TypePong, ID: msg.ID})
	default:
		c.reply(Message{Type: TypeError, ID: msg.ID, Payload: map[string]string{"message": "unknown message type: " + msg.Type}})
	}
}

// subscribe narrows delivery to the named events. An empty list restores
// delivery of everything.
func (c *client) subscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(events) == 0 {
		c.events = nil
		return
	}
	if c.events == nil {
		c.events = make(map[string]struct{}, len(events))
	}
	for _, e := range events {
		c.events[e] = struct{}{}
	}
}

func (c *client) unsubscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		c.events = make(map[string]struct{}, 3)
		for _, e := range []string{EventSensorUpdate, EventDeviceStatus, EventDeviceControl} {
			c.events[e] = struct{}{}
		}
	}
	for _, e := range events {
		delete(c.events, e)
	}
}

// subscribed returns the explicit subscription list, or nil for all events.
func (c *client) subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		return nil
	}
	out := make([]string, 0, len(c.events))
	for e := range c.events {
		out = append(out, e)
	}
	return out
}

func (c *client) reply(msg Message) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}
