// Package types defines shared Go types used by both the agent and server.
// These are the canonical representations of coverage verdicts, divert
// windows and per-location reports, and double as the JSON wire format the
// agent ships to the server.
package types
