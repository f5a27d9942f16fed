package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with connection lifecycle hooks, tracked
// subscriptions and bounded publishes.
//
// Subscriptions are NOT restored automatically after a reconnect: the broker
// session is clean, and the owner of a subscription re-issues it from its
// OnConnect hook. Re-subscribing to a tracked filter replaces the previous
// entry, so repeated reconnect cycles never accumulate subscriptions.
//
// All methods are safe for concurrent use. Concurrent publishes are
// serialised by paho's outbound queue.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect        func()
	onConnecting     func()
	onConnectionLost func(err error)
	callbackMu       sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the optional logging dependency. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// paho delivers messages for all subscriptions from a single goroutine in
// arrival order, so a handler that blocks delays every later message.
// A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// New builds a client from configuration without connecting.
// Register lifecycle hooks before calling Connect so the first
// connection events are observed.
func New(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleConnecting()
	})
	opts.SetConnectionAttemptHandler(func(_ *url.URL, tlsCfg *tls.Config) *tls.Config {
		c.handleConnecting()
		return tlsCfg
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// Connect starts the connection and waits until it is established, ctx is
// done, or the connect timeout passes.
//
// A timeout is reported as ErrTimeout, but paho keeps retrying in the
// background and the OnConnect hook fires once the broker is reachable.
// Callers can treat ErrTimeout as "degraded, still connecting".
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	waitCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	select {
	case <-token.Done():
	case <-waitCtx.Done():
		return fmt.Errorf("%w: connecting to %s", ErrTimeout, brokerURL(c.cfg))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark the state here so
	// IsConnected is accurate as soon as Connect returns.
	c.setConnected(true)
	return nil
}

// Connected reports whether err from Connect still leaves a usable client.
func Connected(err error) bool {
	return err == nil || errors.Is(err, ErrTimeout)
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID))

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleConnecting() {
	c.callbackMu.RLock()
	callback := c.onConnecting
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.setConnected(false)

	c.callbackMu.RLock()
	callback := c.onConnectionLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// publishStatus sends a retained service status without waiting for the ack.
func (c *Client) publishStatus(payload string) {
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			buildOfflinePayload(c.cfg.Broker.ClientID))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect sets the hook run on the initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnConnecting sets the hook run before every connection attempt.
func (c *Client) SetOnConnecting(callback func()) {
	c.callbackMu.Lock()
	c.onConnecting = callback
	c.callbackMu.Unlock()
}

// SetOnConnectionLost sets the hook run when an established connection drops.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectionLost = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for handler errors and recovered panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, recovering panics so one bad
// message cannot kill paho's delivery goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("mqtt handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("mqtt handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
