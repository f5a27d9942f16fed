package influxdb

import "errors"

// Sentinel errors; match with errors.Is.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when the mirror is turned off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
