// Package api implements the HTTP REST API for hydrowatch-server.
//
// New(store) returns an http.Handler that serves:
//
//	GET /api/v1/health            — overall state, per-state counts, latest run
//	GET /api/v1/locations         — all live locations ([]LocationResponse)
//	GET /api/v1/locations/{code}  — one location with its full report; 404 if unknown or stale
//	GET /api/v1/skipped           — inputs excluded from the latest run, by kind
//	GET /api/v1/snapshot          — health plus every live location + generated_at
//	GET /metrics                  — the same state as Prometheus gauges
//
// All JSON endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//   - Read live entries from the store (stale entries excluded from lists)
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
