// Package babybuddy is a client for the Baby Buddy REST API.
//
// The client discovers endpoint URLs from the server's root listing
// (GET {host}:{port}/api/) and resolves every later call through that map:
//
//	client := babybuddy.New(babybuddy.Config{
//	    Host:   "http://babybuddy.local",
//	    Port:   8000,
//	    APIKey: apiKey,
//	})
//	if err := client.Connect(ctx); err != nil {
//	    // errors.Is(err, babybuddy.ErrAuthorization) or babybuddy.ErrConnect
//	}
//
//	children, err := client.Children(ctx)
//	latest, err := client.Latest(ctx, "feedings", children.Results[0].ID)
//
// Every request carries "Authorization: Token {api_key}" and has its own
// ten second timeout. Writes (Post, Patch, Delete) are form-encoded, log
// failures with the server-reported body, and return them as *StatusError.
//
// Records are opaque maps. The Endpoints table names the record types the
// bridge tracks and how to read a state value and telemetry out of each.
package babybuddy
