// Package api implements the HTTP REST API and WebSocket server of the Baby
// Buddy bridge.
//
// This package provides:
//   - Entry endpoints: status, latest snapshot, manual refresh, scan interval
//   - Service endpoints that validate and invoke integration services
//   - Read-only access to the child device registry
//   - The log of every service call made through the API or MQTT
//   - WebSocket hub broadcasting every new snapshot ("snapshot.updated")
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// Protected routes need "Authorization: Bearer <jwt>", an HS256 token signed
// with security.jwt.secret. Tokens are minted with IssueToken (see the
// -issue-token flag of the binary). WebSocket connections use single-use
// tickets from POST /api/v1/auth/ws-ticket so the JWT never appears in a URL.
//
// # Routes
//
//	GET   /api/v1/health                   public
//	GET   /api/v1/ws?ticket=...            ticket
//	POST  /api/v1/auth/ws-ticket
//	GET   /api/v1/metrics
//	GET   /api/v1/entries
//	GET   /api/v1/entries/{id}
//	GET   /api/v1/entries/{id}/snapshot
//	POST  /api/v1/entries/{id}/refresh
//	PATCH /api/v1/entries/{id}/options     {"scan_interval": 120}
//	GET   /api/v1/devices[?entry=...]
//	GET   /api/v1/devices/stats
//	GET   /api/v1/devices/{id}
//	GET   /api/v1/services
//	POST  /api/v1/services/{name}          service data as JSON
//	GET   /api/v1/services/calls           ?service=&entry=&source=&status=&limit=&offset=
package api
