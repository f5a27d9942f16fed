// Package api implements the HTTP REST API for Homewatch Core.
//
// This package provides:
//   - REST endpoints for devices, readings, commands and the home hierarchy
//   - the /ws upgrade endpoint in front of the observer hub
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, metrics, recovery, CORS)
//
// Every device endpoint runs the access predicate before touching data, so
// a caller only ever sees devices in homes they own or hold a grant on.
//
// # Graceful Degradation
//
// The server operates without a bus connection. Reads and live events keep
// working and commands fall back to local state changes when the
// dispatcher was built without a publisher.
package api
