package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultReportTTL      = 48 * time.Hour
	DefaultStreamInterval = 5 * time.Second
	DefaultHeader         = "X-API-Key"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the report receiver, REST API and WebSocket hub
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates agents posting reports.
	Auth AuthConfig `yaml:"auth"`

	// Report controls in-memory report retention.
	Report ReportConfig `yaml:"report"`

	// StreamInterval is how often the WebSocket hub pushes the snapshot.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "X-API-Key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultHeader
}

// ReportConfig controls in-memory report retention.
type ReportConfig struct {
	// TTL is how long a location's report remains in the store after its
	// last update. Zero keeps reports until replaced. Default: 48h.
	TTL time.Duration `yaml:"ttl"`
}

// Load reads and parses the config file at path, returning the server configuration.
// A .env file next to the config is loaded into the environment first so
// key_env references resolve. Missing fields are filled with defaults before
// validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("server config: ignoring unreadable .env", "err", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       DefaultHTTPPort,
			Report:         ReportConfig{TTL: DefaultReportTTL},
			StreamInterval: DefaultStreamInterval,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey":
		if s.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required for mode apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Report.TTL < 0 {
		return fmt.Errorf("server.report.ttl must not be negative")
	}
	if s.StreamInterval <= 0 {
		return fmt.Errorf("server.stream_interval must be positive")
	}
	return nil
}
