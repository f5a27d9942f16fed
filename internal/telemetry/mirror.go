package telemetry

import (
	"github.com/nerrad567/homewatch-core/internal/infrastructure/influxdb"
)

// Mirror receives a copy of every stored reading. *influxdb.Client
// satisfies it. Writes are fire-and-forget.
type Mirror interface {
	WriteReading(p influxdb.ReadingPoint)
}

// Point converts a stored reading into a mirror point.
func Point(r *Reading, deviceType string, floor int, location string) influxdb.ReadingPoint {
	return influxdb.ReadingPoint{
		DeviceID:  r.DeviceID,
		Type:      deviceType,
		Floor:     floor,
		Location:  location,
		Value:     r.Value,
		Unit:      r.Unit,
		Timestamp: r.Timestamp,
	}
}
