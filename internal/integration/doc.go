// Package integration sets up Baby Buddy entries and exposes their services.
//
// A Host owns one coordinator per configured server. It is created by main
// and handed to the transports (MQTT commands, HTTP API) that invoke
// services:
//
//	host := integration.NewHost(integration.HostConfig{
//	    Devices:  registry,
//	    Location: cfg.Site.Location(),
//	    Logger:   log,
//	})
//	for _, entry := range cfg.BabyBuddy.Entries {
//	    if err := host.SetupEntry(ctx, entry); err != nil { ... }
//	}
//	defer host.Close()
//
//	rec, err := host.Call(ctx, integration.ServiceAddChild, map[string]any{
//	    "first_name": "Alice",
//	    "last_name":  "Smith",
//	})
//
// Service data is validated against a Schema before any request is made.
// Time fields accept HH:MM[:SS] (today in the site timezone) or a full
// datetime and are rejected when they lie in the future.
package integration
