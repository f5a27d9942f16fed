package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	MeasurementReading = "sensor_readings"
	MeasurementAction  = "device_actions"
)

// ReadingPoint describes one stored sensor reading.
type ReadingPoint struct {
	DeviceID  string
	Type      string
	Floor     int
	Location  string
	Value     float64
	Unit      string
	Timestamp time.Time
}

// ActionPoint describes the outcome of one control command.
type ActionPoint struct {
	DeviceID  string
	Action    string
	Status    string
	Timestamp time.Time
}

// WriteReading queues a reading. It is dropped silently when disconnected.
func (c *Client) WriteReading(r ReadingPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(r))
}

// WriteAction queues a command outcome. It is dropped silently when disconnected.
func (c *Client) WriteAction(a ActionPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(actionPoint(a))
}

func readingPoint(r ReadingPoint) *write.Point {
	return write.NewPoint(
		MeasurementReading,
		map[string]string{
			"device_id": r.DeviceID,
			"type":      r.Type,
			"floor":     strconv.Itoa(r.Floor),
			"location":  r.Location,
			"unit":      r.Unit,
		},
		map[string]interface{}{
			"value": r.Value,
		},
		r.Timestamp,
	)
}

func actionPoint(a ActionPoint) *write.Point {
	success := 0
	if a.Status == "success" {
		success = 1
	}
	return write.NewPoint(
		MeasurementAction,
		map[string]string{
			"device_id": a.DeviceID,
			"action":    a.Action,
			"status":    a.Status,
		},
		map[string]interface{}{
			"count":   1,
			"success": success,
		},
		a.Timestamp,
	)
}
