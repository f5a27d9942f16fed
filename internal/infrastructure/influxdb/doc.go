// Package influxdb mirrors telemetry into InfluxDB v2 for long-term
// dashboards. It is optional: SQLite remains the source of truth and
// the mirror only receives copies of what was already stored.
//
// Points:
//
//	sensor_readings,device_id=…,type=…,floor=…,location=…,unit=… value=21.5
//	device_actions,device_id=…,action=…,status=… count=1i,success=1i
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
package influxdb
