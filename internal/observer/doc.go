// Package observer fans live events out to WebSocket clients.
//
// The ingestion bridge and the control dispatcher call Hub.Emit; every
// connected client receives the event unless it narrowed its subscription.
// Delivery is best-effort: a client whose send buffer is full misses the
// event and nobody else is slowed down.
//
// Wire format (server to client):
//
//	{"type":"event","event":"sensor_update","timestamp":"...","payload":{...}}
//
// Client to server:
//
//	{"type":"subscribe","id":"1","events":["sensor_update"]}
//	{"type":"unsubscribe","id":"2","events":["sensor_update"]}
//	{"type":"ping","id":"3"}
package observer
