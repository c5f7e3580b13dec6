// Package device is the registry of child devices.
//
// Every child discovered on a configured Baby Buddy server becomes one
// device, keyed by (entry id, child id). The coordinator registers devices
// as children appear and removes the ones whose child is no longer known.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                       Device Registry                         │
//	│                                                               │
//	│  ┌──────────────────┐    ┌──────────────────┐                 │
//	│  │     Registry     │    │    Repository    │                 │
//	│  │   (registry.go)  │───▶│  (repository.go) │                 │
//	│  │ • EnsureDevice   │    │ • SQLite queries │                 │
//	│  │ • In-memory cache│    │ • Unique keys    │                 │
//	│  └──────────────────┘    └──────────────────┘                 │
//	└───────────────────────────────│───────────────────────────────┘
//	                                ▼
//	                     ┌──────────────────────┐
//	                     │   SQLite Database    │
//	                     │   (devices table)    │
//	                     └──────────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev, created, err := registry.EnsureDevice(ctx, "home", "1", "Alice Smith")
//	devices, _ := registry.ListEntryDevices(ctx, "home")
//
// # Thread Safety
//
// The Registry is safe for concurrent use. The Repository implementation
// must also be thread-safe.
//
// # Related Documentation
//
//   - migrations/20260301_090000_devices.up.sql: database schema
package device
