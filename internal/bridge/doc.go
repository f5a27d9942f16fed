// Package bridge ingests device telemetry from the MQTT bus.
//
// The Bridge subscribes to the sensor topics of both address schemes,
// resolves each message to a registered device, stores readings, updates
// the device's status and last-seen time, and emits live events.
//
// Messages are handed from the bus client to a single worker through a
// bounded queue and processed one at a time in delivery order. A bad
// message is logged, counted and dropped; it never stops the worker.
//
// Subscriptions are re-issued every time the connection comes up, so the
// Bridge survives any number of reconnect cycles.
package bridge
