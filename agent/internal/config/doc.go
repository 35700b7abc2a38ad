// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent} — full config tree parsed from YAML
//   - AgentConfig — server_endpoint, analysis_interval, buffer_size,
//     server_auth, analysis, catalog, diverts, locations, publish
//   - AnalysisConfig — thresholds and window; Params() converts to compute.Params
//   - CatalogConfig — type (onc|prometheus|fixture), endpoint, auth, tls,
//     expected-count estimation and the optional Redis cache
//   - DivertConfig — notice directory, lookback and static divert events
//   - AuthConfig — mode (mtls|apikey|bearer|basic|token|none); Key(), Token()
//     and Password() resolve secrets from environment variables
//
// Load(path) loads a sibling .env file (godotenv), reads the YAML file,
// applies defaults (1h analysis, 15s ship, 100 buffer, 0.30/1.0 thresholds,
// 7-day window), then validates required fields and enums. Threshold
// problems surface as *compute.ConfigError.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// a rename event.
package config
