// Package device provides the Device Registry.
//
// The registry is the durable catalogue of every sensor and actuator known to
// the bridge: identity, bus address (floor, location, type), last known
// status and, for devices driven without a broker, a local on/off state and
// numeric value.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│                      Device Registry                     │
//	│                                                          │
//	│  ┌──────────────────┐        ┌──────────────────┐        │
//	│  │     Registry     │───────▶│    Repository    │        │
//	│  │  (registry.go)   │        │ (repository.go)  │        │
//	│  │ • cache by ID    │        │ • SQLite queries │        │
//	│  │ • address lookup │        │ • narrow updates │        │
//	│  └──────────────────┘        └──────────────────┘        │
//	└──────────────────────────────────────────────────────────┘
//	     ▲                ▲                   ▲
//	     │                │                   │
//	 bridge (MarkSeen)  control (Mutate)   api (CRUD)
//
// # Address Lookup
//
// Devices are addressed on the bus by (floor, location, type). Legacy topics
// carry no floor, so FindByLegacyAddress matches on (location, type) alone and
// returns the lowest floor when several devices share that pair. Inactive
// devices are never returned by address lookups.
//
// # Concurrency
//
// The bridge updates status and last_seen while the dispatcher updates local
// state; both go through narrow statements or a single read-modify-write
// transaction so neither can overwrite the other's fields with stale values.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev, err := registry.FindByAddress(ctx, 1, "living_room", "temperature")
package device
