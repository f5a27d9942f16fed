package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homewatch-core/internal/metrics"
	"github.com/nerrad567/homewatch-core/internal/telemetry"
	"github.com/nerrad567/homewatch-core/internal/topic"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 5 * time.Second
	subscribeQoS        = 1
)

// ErrStopped is returned by the message handler after Stop.
var ErrStopped = errors.New("bridge: stopped")

// Bus is the MQTT client surface the Bridge needs. *mqtt.Client satisfies it.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	SetOnConnect(callback func())
	SetOnConnecting(callback func())
	SetOnConnectionLost(callback func(err error))
}

// Registry resolves bus addresses and records device liveness.
// *device.Registry satisfies it.
type Registry interface {
	FindByAddress(ctx context.Context, floor int, location, deviceType string) (*device.Device, error)
	FindByLegacyAddress(ctx context.Context, location, deviceType string) (*device.Device, error)
	MarkSeen(ctx context.Context, id string, status device.Status, seen time.Time) error
}

// Readings appends sensor readings. *telemetry.SQLiteStore satisfies it.
type Readings interface {
	Append(ctx context.Context, r *telemetry.Reading) error
}

// Emitter receives live events. Delivery is fire-and-forget.
// *observer.Hub satisfies it.
type Emitter interface {
	Emit(event string, payload any)
}

// Metrics receives ingestion counters. *metrics.Collector satisfies it.
type Metrics interface {
	MessageReceived()
	MessageStored(measurementType string)
	MessageDiscarded(reason string)
	ObserveIngest(d time.Duration)
	SetQueueDepth(n int)
	SetBusConnected(up bool)
}

// Logger is the logging dependency of the Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge. Bus, Registry and Readings are required.
type Options struct {
	Bus      Bus
	Registry Registry
	Readings Readings

	// Optional collaborators.
	Emitter Emitter
	Mirror  telemetry.Mirror
	Metrics Metrics
	Logger  Logger

	// QueueSize is the number of messages buffered ahead of the worker.
	QueueSize int

	// WriteTimeout bounds the store writes for one message.
	WriteTimeout time.Duration
}

type message struct {
	topic   string
	payload []byte
}

// Bridge connects bus telemetry to the device registry and reading store.
type Bridge struct {
	bus      Bus
	registry Registry
	readings Readings
	emitter  Emitter
	mirror   telemetry.Mirror
	metrics  Metrics
	logger   Logger

	writeTimeout time.Duration
	now          func() time.Time

	state atomic.Int32
	queue chan message

	subMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
	started  atomic.Bool
}

// New creates a Bridge. Call Start to begin processing.
func New(opts Options) (*Bridge, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Readings == nil {
		return nil, fmt.Errorf("reading store is required")
	}

	b := &Bridge{
		bus:          opts.Bus,
		registry:     opts.Registry,
		readings:     opts.Readings,
		emitter:      opts.Emitter,
		mirror:       opts.Mirror,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		writeTimeout: opts.WriteTimeout,
		now:          time.Now,
		done:         make(chan struct{}),
	}
	if b.emitter == nil {
		b.emitter = noopEmitter{}
	}
	if b.metrics == nil {
		b.metrics = noopMetrics{}
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.writeTimeout <= 0 {
		b.writeTimeout = defaultWriteTimeout
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	b.queue = make(chan message, size)
	return b, nil
}

// Start registers the connection hooks and launches the worker. If the bus
// is already connected the subscriptions are issued immediately.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("bridge already started")
	}

	b.bus.SetOnConnecting(b.HandleConnecting)
	b.bus.SetOnConnect(b.HandleConnected)
	b.bus.SetOnConnectionLost(b.HandleConnectionLost)

	b.wg.Add(1)
	go b.run(ctx)

	if b.bus.IsConnected() {
		b.HandleConnected()
	}
	b.logger.Info("ingestion bridge started", "filters", len(topic.SubscriptionFilters()))
	return nil
}

// Stop stops the worker, drops the telemetry subscriptions and waits for
// the message in flight. Messages still queued are dropped.
func (b *Bridge) Stop() {
	b.closeDone()
	if b.started.Load() {
		b.unsubscribe()
	}
	b.wg.Wait()
	b.logger.Info("ingestion bridge stopped")
}

// unsubscribe removes the filters from the client so they are not
// restored on its next reconnect.
func (b *Bridge) unsubscribe() {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	for _, filter := range topic.SubscriptionFilters() {
		if err := b.bus.Unsubscribe(filter); err != nil {
			b.logger.Warn("unsubscribing from telemetry", "filter", filter, "error", err)
		}
	}
}

func (b *Bridge) closeDone() {
	b.doneOnce.Do(func() { close(b.done) })
}

// State returns the current connection state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// HandleConnecting records a connection attempt.
func (b *Bridge) HandleConnecting() {
	b.setState(StateConnecting)
}

// HandleConnected enters Connected and (re)subscribes to every filter.
// Subscriptions are never assumed to survive a reconnect.
func (b *Bridge) HandleConnected() {
	b.setState(StateConnected)
	b.metrics.SetBusConnected(true)

	b.subMu.Lock()
	defer b.subMu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}
	for _, filter := range topic.SubscriptionFilters() {
		if err := b.bus.Subscribe(filter, subscribeQoS, b.enqueue); err != nil {
			b.logger.Error("subscribing to telemetry", "filter", filter, "error", err)
			continue
		}
		b.logger.Debug("subscribed to telemetry", "filter", filter)
	}
}

// HandleConnectionLost moves to Disconnected. The bus client reconnects on
// its own and HandleConnecting/HandleConnected follow.
func (b *Bridge) HandleConnectionLost(err error) {
	if b.State() == StateDisconnected {
		return
	}
	b.setState(StateDisconnected)
	b.metrics.SetBusConnected(false)
	b.logger.Warn("bus connection lost", "error", err)
}

func (b *Bridge) setState(s State) {
	old := State(b.state.Swap(int32(s)))
	if old != s {
		b.logger.Info("bus connection state changed", "from", old.String(), "to", s.String())
	}
}

// enqueue is the bus message handler. It blocks while the queue is full so
// delivery order is preserved, and gives up only when the Bridge stops.
func (b *Bridge) enqueue(t string, payload []byte) error {
	msg := message{topic: t, payload: append([]byte(nil), payload...)}
	select {
	case b.queue <- msg:
		b.metrics.SetQueueDepth(len(b.queue))
		return nil
	case <-b.done:
		return ErrStopped
	}
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			b.closeDone()
			return
		case <-b.done:
			return
		case msg := <-b.queue:
			b.metrics.SetQueueDepth(len(b.queue))
			b.handle(ctx, msg)
		}
	}
}

// handle processes one message with a bounded write budget and converts a
// panic into a discarded message.
func (b *Bridge) handle(parent context.Context, msg message) {
	start := b.now()
	defer func() {
		if r := recover(); r != nil {
			b.metrics.MessageDiscarded(metrics.ReasonPanic)
			b.logger.Error("telemetry handler panic", "topic", msg.topic, "panic", r)
		}
		b.metrics.ObserveIngest(b.now().Sub(start))
	}()

	ctx, cancel := context.WithTimeout(parent, b.writeTimeout)
	defer cancel()

	b.metrics.MessageReceived()
	res, err := b.process(ctx, msg)
	switch {
	case err != nil:
		b.metrics.MessageDiscarded(metrics.ReasonStoreError)
		b.logger.Error("processing telemetry", "topic", msg.topic, "error", err)
	case res.discarded != "":
		b.metrics.MessageDiscarded(res.discarded)
		b.logger.Debug("telemetry discarded", "topic", msg.topic, "reason", res.discarded)
	default:
		b.metrics.MessageStored(res.measurementType)
	}
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, any) {}

type noopMetrics struct{}

func (noopMetrics) MessageReceived()            {}
func (noopMetrics) MessageStored(string)        {}
func (noopMetrics) MessageDiscarded(string)     {}
func (noopMetrics) ObserveIngest(time.Duration) {}
func (noopMetrics) SetQueueDepth(int)           {}
func (noopMetrics) SetBusConnected(bool)        {}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
