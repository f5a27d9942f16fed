package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homewatch-core/internal/action"
	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homewatch-core/internal/observer"
	"github.com/nerrad567/homewatch-core/internal/topic"
)

const (
	defaultPublishTimeout = 5 * time.Second
	resolveRetryTimeout   = 2 * time.Second
	commandQoS            = 1

	pathBus   = "bus"
	pathLocal = "local"
)

// Publisher sends a command on the bus. *mqtt.Client satisfies it.
type Publisher interface {
	PublishContext(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
}

// Devices looks up and mutates devices. *device.Registry satisfies it.
type Devices interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	MutateDevice(ctx context.Context, id string, fn func(d *device.Device) error) (*device.Device, error)
}

// Access decides whether a caller may command a device.
// *access.Checker satisfies it.
type Access interface {
	RequireDevice(ctx context.Context, subject auth.Subject, d *device.Device) error
}

// Actions records command outcomes. *action.SQLiteRepository satisfies it.
type Actions interface {
	Create(ctx context.Context, a *action.Action) error
	Resolve(ctx context.Context, id int64, status action.Status, message string) error
}

// Emitter receives live events. *observer.Hub satisfies it.
type Emitter interface {
	Emit(event string, payload any)
}

// ActionMirror receives a copy of each resolved action.
// *influxdb.Client satisfies it.
type ActionMirror interface {
	WriteAction(p influxdb.ActionPoint)
}

// Metrics receives dispatch counters. *metrics.Collector satisfies it.
type Metrics interface {
	CommandDispatched(path, status string)
	ObservePublish(d time.Duration)
}

// Logger is the logging dependency of the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Dispatcher. Devices, Actions and Access are required.
// A nil Publisher selects the local path.
type Options struct {
	Devices   Devices
	Actions   Actions
	Access    Access
	Publisher Publisher

	Emitter Emitter
	Mirror  ActionMirror
	Metrics Metrics
	Logger  Logger

	// PublishTimeout bounds one publish. Zero means 5s.
	PublishTimeout time.Duration
}

// Result is the outcome of a dispatched command. Success always matches
// the stored Action status.
type Result struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	ActionID int64          `json:"action_id"`
	Status   action.Status  `json:"status"`
	Topic    string         `json:"topic,omitempty"`
	Device   *device.Device `json:"device,omitempty"`
}

// ControlEvent is the payload of a device_control event.
type ControlEvent struct {
	DeviceID string        `json:"device_id"`
	Action   string        `json:"action"`
	Value    any           `json:"value,omitempty"`
	Status   action.Status `json:"status"`
	State    *bool         `json:"state,omitempty"`
	Level    *float64      `json:"level,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
}

// ScopedDeviceID limits the event to observers who can see the device.
func (e ControlEvent) ScopedDeviceID() string { return e.DeviceID }

// Dispatcher turns commands into bus messages or local state changes.
type Dispatcher struct {
	devices   Devices
	actions   Actions
	access    Access
	publisher Publisher
	emitter   Emitter
	mirror    ActionMirror
	metrics   Metrics
	logger    Logger

	publishTimeout time.Duration
	now            func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if opts.Actions == nil {
		return nil, fmt.Errorf("action repository is required")
	}
	if opts.Access == nil {
		return nil, fmt.Errorf("access checker is required")
	}

	d := &Dispatcher{
		devices:        opts.Devices,
		actions:        opts.Actions,
		access:         opts.Access,
		publisher:      opts.Publisher,
		emitter:        opts.Emitter,
		mirror:         opts.Mirror,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		publishTimeout: opts.PublishTimeout,
		now:            time.Now,
	}
	if d.publishTimeout <= 0 {
		d.publishTimeout = defaultPublishTimeout
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.metrics == nil {
		d.metrics = noopMetrics{}
	}
	return d, nil
}

// Online reports whether commands go to the bus.
func (d *Dispatcher) Online() bool {
	return d.publisher != nil
}

// Dispatch executes cmd.
//
// Validation, lookup and authorisation failures return an error and leave
// no Action behind: ErrInvalidCommand, device.ErrDeviceNotFound or
// access.ErrForbidden. Once the Action exists, a failed attempt is a
// Result with Success false and a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	dev, err := d.devices.GetDevice(ctx, cmd.DeviceID)
	if err != nil {
		return nil, err
	}
	if err := d.access.RequireDevice(ctx, cmd.Subject, dev); err != nil {
		return nil, err
	}

	a := &action.Action{
		DeviceID: dev.ID,
		Action:   cmd.Action,
		Value:    action.FormatValue(cmd.Value),
	}
	if !cmd.Subject.Anonymous() {
		uid := cmd.Subject.UserID
		a.UserID = &uid
	}
	if err := d.actions.Create(ctx, a); err != nil {
		if errors.Is(err, action.ErrDeviceNotFound) {
			return nil, device.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("recording action: %w", err)
	}

	// From here the Action exists; resolution must not depend on the
	// caller's context surviving.
	resolveCtx := context.WithoutCancel(ctx)

	var res *Result
	if d.publisher != nil {
		res = d.publish(ctx, dev, cmd)
		d.metrics.CommandDispatched(pathBus, string(statusOf(res.Success)))
	} else {
		res = d.applyLocally(resolveCtx, dev, cmd)
		d.metrics.CommandDispatched(pathLocal, string(statusOf(res.Success)))
	}
	res.ActionID = a.ID
	res.Status = statusOf(res.Success)

	if err := d.resolve(resolveCtx, a.ID, res); err != nil {
		d.logger.Error("action left pending", "action_id", a.ID, "device_id", dev.ID,
			"status", res.Status, "error", err)
		return nil, fmt.Errorf("resolving action %d: %w", a.ID, err)
	}

	d.logger.Info("device command dispatched",
		"device_id", dev.ID, "action", cmd.Action, "action_id", a.ID,
		"status", res.Status, "user", cmd.Subject.Username)
	d.announce(cmd, res)
	return res, nil
}

// resolve stores the outcome of an Action. A failed write is retried once
// on a fresh context; the command has already run and must not stay pending.
func (d *Dispatcher) resolve(ctx context.Context, id int64, res *Result) error {
	err := d.actions.Resolve(ctx, id, res.Status, res.Message)
	if err == nil || errors.Is(err, action.ErrInvalidStatus) || errors.Is(err, action.ErrNotFound) {
		return err
	}
	d.logger.Warn("resolving action failed, retrying", "action_id", id, "error", err)

	retryCtx, cancel := context.WithTimeout(context.Background(), resolveRetryTimeout)
	defer cancel()
	err = d.actions.Resolve(retryCtx, id, res.Status, res.Message)
	if errors.Is(err, action.ErrAlreadyResolved) {
		// The first attempt landed before it reported an error.
		return nil
	}
	return err
}

func (d *Dispatcher) publish(ctx context.Context, dev *device.Device, cmd Command) *Result {
	t := topic.ControlTopic(topic.FloorToken(dev.Floor), dev.Location, dev.Type)
	res := &Result{Topic: t}

	body, err := encodePayload(cmd)
	if err != nil {
		res.Message = fmt.Sprintf("encoding command: %v", err)
		return res
	}

	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	start := d.now()
	err = d.publisher.PublishContext(pubCtx, t, body, commandQoS, false)
	d.metrics.ObservePublish(d.now().Sub(start))
	if err != nil {
		d.logger.Warn("command publish failed", "device_id", dev.ID, "topic", t, "error", err)
		res.Message = "Failed to send command: " + err.Error()
		return res
	}

	res.Success = true
	res.Message = "Command sent: " + cmd.Action
	return res
}

func (d *Dispatcher) applyLocally(ctx context.Context, dev *device.Device, cmd Command) *Result {
	updated, err := d.devices.MutateDevice(ctx, dev.ID, func(target *device.Device) error {
		return applyLocal(target, cmd.Action, cmd.Value)
	})
	if err != nil {
		return &Result{Message: "Failed to apply command: " + err.Error()}
	}
	return &Result{
		Success: true,
		Message: "Command applied: " + cmd.Action,
		Device:  updated,
	}
}

func (d *Dispatcher) announce(cmd Command, res *Result) {
	if d.mirror != nil {
		d.mirror.WriteAction(influxdb.ActionPoint{
			DeviceID:  cmd.DeviceID,
			Action:    cmd.Action,
			Status:    string(res.Status),
			Timestamp: d.now(),
		})
	}
	if d.emitter == nil {
		return
	}
	ev := ControlEvent{
		DeviceID: cmd.DeviceID,
		Action:   cmd.Action,
		Value:    cmd.Value,
		Status:   res.Status,
		UserID:   cmd.Subject.UserID,
	}
	if res.Device != nil {
		state := res.Device.State
		ev.State = &state
		ev.Level = res.Device.Value
	}
	d.emitter.Emit(observer.EventDeviceControl, ev)
}

func statusOf(success bool) action.Status {
	if success {
		return action.StatusSuccess
	}
	return action.StatusFailed
}

type noopMetrics struct{}

func (noopMetrics) CommandDispatched(string, string) {}
func (noopMetrics) ObservePublish(time.Duration)     {}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
