package device

import (
	"context"
	"fmt"
)

// SampleDevices is the starter set created on an empty registry when
// devices.seed_samples is enabled.
func SampleDevices() []Device {
	return []Device{
		{ID: "temp_living_room", Name: "Living Room Temperature", Type: TypeTemperature, Floor: 1, Location: "living_room"},
		{ID: "humidity_living_room", Name: "Living Room Humidity", Type: TypeHumidity, Floor: 1, Location: "living_room"},
		{ID: "temp_bedroom", Name: "Bedroom Temperature", Type: TypeTemperature, Floor: 1, Location: "bedroom"},
		{ID: "humidity_bedroom", Name: "Bedroom Humidity", Type: TypeHumidity, Floor: 1, Location: "bedroom"},
		{ID: "light_living_room", Name: "Living Room Light", Type: TypeLight, Floor: 1, Location: "living_room"},
		{ID: "light_bedroom", Name: "Bedroom Light", Type: TypeLight, Floor: 1, Location: "bedroom"},
		{ID: "switch_hall", Name: "Hall Switch", Type: TypeSwitch, Floor: 1, Location: "hall"},
		{ID: "dimmer_living_room", Name: "Living Room Dimmer", Type: TypeDimmer, Floor: 1, Location: "living_room"},
	}
}

// SeedSamples creates SampleDevices when the registry is empty and returns
// how many were created. RefreshCache must have run first.
func (r *Registry) SeedSamples(ctx context.Context) (int, error) {
	if r.DeviceCount() > 0 {
		return 0, nil
	}

	created := 0
	for _, d := range SampleDevices() {
		d.Status = StatusOffline
		d.IsActive = true
		if err := r.CreateDevice(ctx, &d); err != nil {
			return created, fmt.Errorf("seeding device %s: %w", d.ID, err)
		}
		created++
	}

	r.logger.Info("sample devices seeded", "count", created)
	return created, nil
}
