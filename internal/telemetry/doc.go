// Package telemetry is the time-series store for sensor readings.
//
// Readings are append-only rows of (device, value, unit, timestamp) written
// by the ingestion bridge. The SQLite store is authoritative; an InfluxDB
// mirror can receive a copy of each reading for dashboards. Retention
// deletes rows older than the configured horizon on a fixed interval.
package telemetry
