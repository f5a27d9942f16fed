//go:build integration

package mqtt

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// These tests need a broker at 127.0.0.1:1883:
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func connectTestClient(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	c := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	c := connectTestClient(t, "homewatch-it-pubsub")

	received := make(chan string, 1)
	err := c.Subscribe("home/+/+/temperature", 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.PublishContext(ctx, "home/floor1/lab/temperature", []byte(`{"value":21.5}`), 1, false); err != nil {
		t.Fatalf("PublishContext() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `home/floor1/lab/temperature {"value":21.5}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
}

func TestIntegration_ResubscribeIsIdempotent(t *testing.T) {
	c := connectTestClient(t, "homewatch-it-resub")

	var calls atomic.Int32
	handler := func(string, []byte) error {
		calls.Add(1)
		return nil
	}

	for i := 0; i < 3; i++ {
		if err := c.Subscribe("home/+/+/status", 1, handler); err != nil {
			t.Fatalf("Subscribe() #%d error = %v", i, err)
		}
	}
	c.subMu.RLock()
	tracked := len(c.subscriptions)
	c.subMu.RUnlock()
	if tracked != 1 {
		t.Errorf("tracked subscriptions = %d, want 1", tracked)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.PublishContext(ctx, "home/floor1/lab/status", []byte(`{"status":"online"}`), 1, false); err != nil {
		t.Fatalf("PublishContext() error = %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
}
