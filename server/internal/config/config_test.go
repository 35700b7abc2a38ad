package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Minimal config — agent section only; server section absent.
	p := writeConfig(t, `agent:
  server_endpoint: "http://localhost:8080"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.Report.TTL != DefaultReportTTL {
		t.Errorf("report.ttl: got %v, want %v", cfg.Server.Report.TTL, DefaultReportTTL)
	}
	if cfg.Server.StreamInterval != DefaultStreamInterval {
		t.Errorf("stream_interval: got %v, want %v", cfg.Server.StreamInterval, DefaultStreamInterval)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  stream_interval: 2s
  auth:
    mode: apikey
    key_env: MY_KEY
    header: X-Hydro-Key
  report:
    ttl: 10m
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", cfg.Server.HTTPPort)
	}
	if cfg.Server.Auth.Mode != "apikey" {
		t.Errorf("auth.mode: got %q, want apikey", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Auth.EffectiveHeader() != "X-Hydro-Key" {
		t.Errorf("header: got %q, want X-Hydro-Key", cfg.Server.Auth.EffectiveHeader())
	}
	if cfg.Server.Report.TTL != 10*time.Minute {
		t.Errorf("report.ttl: got %v, want 10m", cfg.Server.Report.TTL)
	}
	if cfg.Server.StreamInterval != 2*time.Second {
		t.Errorf("stream_interval: got %v, want 2s", cfg.Server.StreamInterval)
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != DefaultHeader {
		t.Errorf("EffectiveHeader: got %q, want %q", h, DefaultHeader)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: HYDRO_DOTENV_SERVER_KEY
`)
	if err := os.WriteFile(filepath.Join(filepath.Dir(p), ".env"), []byte("HYDRO_DOTENV_SERVER_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("HYDRO_DOTENV_SERVER_KEY") })

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "from-dotenv" {
		t.Errorf("Key(): got %q, want from-dotenv", k)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n"},
		{"apikey without key_env", "server:\n  auth:\n    mode: apikey\n"},
		{"port out of range", "server:\n  http_port: 70000\n"},
		{"negative ttl", "server:\n  report:\n    ttl: -1m\n"},
		{"zero stream interval", "server:\n  stream_interval: 0s\n"},
		{"bad yaml", "server: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
