// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort        — port for the receiver, REST API and WebSocket hub (default 8080)
//   - Auth.Mode       — "apikey" or "none"
//   - Auth.KeyEnv     — environment variable holding the expected API key
//   - Auth.Header     — HTTP header name (default "X-API-Key")
//   - Report.TTL      — how long a location report remains live (default 48h)
//   - StreamInterval  — WebSocket push interval (default 5s)
//
// Load(path) loads a sibling .env, applies defaults before unmarshalling,
// then validates.
package config
