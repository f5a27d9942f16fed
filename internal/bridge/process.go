package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/metrics"
	"github.com/nerrad567/homewatch-core/internal/observer"
	"github.com/nerrad567/homewatch-core/internal/telemetry"
	"github.com/nerrad567/homewatch-core/internal/topic"
)

// SensorUpdate is the payload of a sensor_update event.
type SensorUpdate struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Floor      int       `json:"floor"`
	Location   string    `json:"location"`
	Type       string    `json:"type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusUpdate is the payload of a device_status event.
type StatusUpdate struct {
	DeviceID  string        `json:"device_id"`
	Floor     int           `json:"floor"`
	Location  string        `json:"location"`
	Status    device.Status `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// ScopedDeviceID limits the event to observers who can see the device.
func (u SensorUpdate) ScopedDeviceID() string { return u.DeviceID }

// ScopedDeviceID limits the event to observers who can see the device.
func (u StatusUpdate) ScopedDeviceID() string { return u.DeviceID }

type outcome struct {
	measurementType string
	discarded       string
}

func discard(reason string) outcome {
	return outcome{discarded: reason}
}

// process applies one message. A non-nil error means a store failure;
// every other problem is reported as a discard reason.
func (b *Bridge) process(ctx context.Context, msg message) (outcome, error) {
	fields := decodePayload(msg.payload)

	routes := topic.Candidates(msg.topic)
	if len(routes) == 0 {
		return discard(metrics.ReasonNoRoute), nil
	}

	d, route, err := b.resolve(ctx, routes)
	if err != nil {
		return outcome{}, err
	}
	if d == nil {
		return discard(metrics.ReasonUnknownDevice), nil
	}

	now := b.now().UTC()
	switch {
	case topic.IsReadingType(route.MeasurementType):
		return b.applyReading(ctx, d, route, fields, now)
	case route.MeasurementType == topic.TypeStatus:
		return b.applyStatus(ctx, d, route, fields, now)
	default:
		if err := b.registry.MarkSeen(ctx, d.ID, device.StatusOnline, now); err != nil {
			return outcome{}, fmt.Errorf("marking %s seen: %w", d.ID, err)
		}
		return outcome{measurementType: route.MeasurementType}, nil
	}
}

// resolve tries each candidate route in order and returns the first
// registered device. A nil device with a nil error means no match.
func (b *Bridge) resolve(ctx context.Context, routes []topic.Route) (*device.Device, topic.Route, error) {
	for _, r := range routes {
		var (
			d   *device.Device
			err error
		)
		if r.Legacy {
			d, err = b.registry.FindByLegacyAddress(ctx, r.Location, r.MeasurementType)
		} else {
			d, err = b.registry.FindByAddress(ctx, r.Floor, r.Location, r.MeasurementType)
		}
		switch {
		case err == nil:
			return d, r, nil
		case errors.Is(err, device.ErrDeviceNotFound):
			continue
		default:
			return nil, r, fmt.Errorf("looking up %s: %w", r, err)
		}
	}
	return nil, topic.Route{}, nil
}

func (b *Bridge) applyReading(ctx context.Context, d *device.Device, route topic.Route, fields map[string]any, now time.Time) (outcome, error) {
	value, ok := coerceNumber(fields["value"])
	if !ok {
		return discard(metrics.ReasonBadValue), nil
	}
	unit, ok := fields["unit"].(string)
	if !ok || unit == "" {
		unit = topic.DefaultUnit(route.MeasurementType)
	}

	r := &telemetry.Reading{DeviceID: d.ID, Value: value, Unit: unit, Timestamp: now}
	if err := b.readings.Append(ctx, r); err != nil {
		if errors.Is(err, telemetry.ErrDeviceNotFound) {
			// Deleted between lookup and write.
			return discard(metrics.ReasonUnknownDevice), nil
		}
		return outcome{}, fmt.Errorf("storing reading for %s: %w", d.ID, err)
	}
	if err := b.registry.MarkSeen(ctx, d.ID, device.StatusOnline, now); err != nil {
		return outcome{}, fmt.Errorf("marking %s online: %w", d.ID, err)
	}

	if b.mirror != nil {
		b.mirror.WriteReading(telemetry.Point(r, d.Type, d.Floor, d.Location))
	}
	b.emitter.Emit(observer.EventSensorUpdate, SensorUpdate{
		DeviceID:   d.ID,
		DeviceName: d.Name,
		Floor:      d.Floor,
		Location:   d.Location,
		Type:       d.Type,
		Value:      value,
		Unit:       unit,
		Timestamp:  now,
	})
	return outcome{measurementType: route.MeasurementType}, nil
}

func (b *Bridge) applyStatus(ctx context.Context, d *device.Device, route topic.Route, fields map[string]any, now time.Time) (outcome, error) {
	raw, _ := fields["status"].(string) //nolint:errcheck // Missing or non-string means unknown
	status := device.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))

	if err := b.registry.MarkSeen(ctx, d.ID, status, now); err != nil {
		return outcome{}, fmt.Errorf("setting %s status: %w", d.ID, err)
	}
	b.emitter.Emit(observer.EventDeviceStatus, StatusUpdate{
		DeviceID:  d.ID,
		Floor:     d.Floor,
		Location:  d.Location,
		Status:    status,
		Timestamp: now,
	})
	return outcome{measurementType: route.MeasurementType}, nil
}

// decodePayload parses a JSON object. Anything else, including valid JSON
// that is not an object, becomes {"value": <raw text>}.
func decodePayload(payload []byte) map[string]any {
	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.UseNumber()
	if err := dec.Decode(&fields); err == nil && fields != nil && !dec.More() {
		return fields
	}
	return map[string]any{"value": strings.TrimSpace(string(payload))}
}

// coerceNumber converts a payload value to a finite float64. Strings are
// parsed, bools count as 1 and 0.
func coerceNumber(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = val
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = n
	case bool:
		if val {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
