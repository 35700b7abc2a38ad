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

	"github.com/hydrowatch/hydrowatch/agent/internal/compute"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAnalysisInterval = time.Hour
	DefaultBufferSize       = 100
	DefaultCatalogTimeout   = 30 * time.Second
	DefaultExpectedFiles    = 12
	DefaultMinExpected      = 4
	DefaultCacheTTL         = 6 * time.Hour
	DefaultLookbackDays     = 30
)

// Catalog source types.
const (
	CatalogONC        = "onc"
	CatalogPrometheus = "prometheus"
	CatalogFixture    = "fixture"
)

// Config is the top-level configuration file. The server binary reads the
// same file and ignores the agent block.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the base URL of hydrowatch-server. When empty the
	// agent does not ship reports.
	ServerEndpoint string `yaml:"server_endpoint"`

	// AnalysisInterval controls how often a full analysis run starts.
	AnalysisInterval time.Duration `yaml:"analysis_interval"`

	// BufferSize is the maximum number of reports held in memory while the
	// server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// ServerAuth configures how the agent authenticates to the server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	Analysis  AnalysisConfig     `yaml:"analysis"`
	Catalog   CatalogConfig      `yaml:"catalog"`
	Diverts   DivertConfig       `yaml:"diverts"`
	Locations []compute.Location `yaml:"locations"`
	Publish   PublishConfig      `yaml:"publish"`
}

// AnalysisConfig holds the classification thresholds.
type AnalysisConfig struct {
	CoverageThreshold   float64 `yaml:"coverage_threshold"`
	GoodThreshold       float64 `yaml:"good_threshold"`
	ReportingWindowDays int     `yaml:"reporting_window_days"`
	DivertMergeGapDays  int     `yaml:"divert_merge_gap_days"`

	// DivertPolicy is mask_all or floor.
	DivertPolicy        string  `yaml:"divert_policy"`
	DivertCoverageFloor float64 `yaml:"divert_coverage_floor"`

	RecentDays  int `yaml:"recent_days"`
	Concurrency int `yaml:"concurrency"`
}

// Params converts the section into engine parameters.
func (a AnalysisConfig) Params() compute.Params {
	return compute.Params{
		CoverageThreshold:   a.CoverageThreshold,
		GoodThreshold:       a.GoodThreshold,
		ReportingWindowDays: a.ReportingWindowDays,
		DivertMergeGapDays:  a.DivertMergeGapDays,
		DivertPolicy:        a.DivertPolicy,
		DivertCoverageFloor: a.DivertCoverageFloor,
		RecentDays:          a.RecentDays,
		Concurrency:         a.Concurrency,
	}
}

// CatalogConfig selects and configures the file-count source.
type CatalogConfig struct {
	// Type is onc | prometheus | fixture.
	Type string `yaml:"type"`

	// Endpoint is the archive listing URL (onc) or exporter metrics URL
	// (prometheus).
	Endpoint string `yaml:"endpoint"`

	// FixturePath is the YAML counts file used by the fixture source.
	FixturePath string `yaml:"fixture_path"`

	Auth    AuthConfig    `yaml:"auth"`
	TLS     TLSConfig     `yaml:"tls"`
	Timeout time.Duration `yaml:"timeout"`

	// DefaultExpected is the expected daily file count for a channel with
	// no data in the window; MinExpected floors the estimated count.
	DefaultExpected int `yaml:"default_expected"`
	MinExpected     int `yaml:"min_expected"`

	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig configures the optional Redis read-through cache in front of
// the catalog. An empty Addr disables it.
type CacheConfig struct {
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	TTL         time.Duration `yaml:"ttl"`
	Prefix      string        `yaml:"prefix"`
}

// Password returns the Redis password resolved from the environment.
func (c CacheConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// DivertConfig lists where divert intervals come from.
type DivertConfig struct {
	// NoticesDir holds operator notification messages (.eml or .txt).
	NoticesDir string `yaml:"notices_dir"`

	// LookbackDays limits which notices are read, counted back from the
	// analysis date.
	LookbackDays int `yaml:"lookback_days"`

	// Events are divert intervals declared directly in config.
	Events []StaticDivert `yaml:"events"`
}

// StaticDivert is one configured divert interval. Bounds are inclusive.
type StaticDivert struct {
	Location string     `yaml:"location"`
	Start    types.Date `yaml:"start"`
	End      types.Date `yaml:"end"`
}

// StaticEvents returns the configured intervals as divert events.
func (d DivertConfig) StaticEvents() []types.DivertEvent {
	out := make([]types.DivertEvent, 0, len(d.Events))
	for _, e := range d.Events {
		out = append(out, types.DivertEvent{
			LocationCode: e.Location,
			Start:        e.Start,
			End:          e.End,
			Source:       "config",
		})
	}
	return out
}

// PublishConfig configures optional report fan-out besides the server.
type PublishConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig enables the Kafka summary sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether a Kafka sink is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// AuthConfig specifies an HTTP authentication mode.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | token | none.
	Mode string `yaml:"mode"`

	// mTLS fields — used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields — used when Mode == "apikey".
	// Header is the HTTP header name to send the key in (X-API-Key when
	// empty).
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token (Mode == "bearer") or the query
	// token (Mode == "token").
	TokenEnv string `yaml:"token_env"`

	// Param is the query parameter used when Mode == "token".
	Param string `yaml:"param"`

	// Basic auth fields — used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// A .env file next to it is loaded into the environment first, so *_env
// keys can refer to it. Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: ignoring unreadable .env", "path", path, "err", err)
	}
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	p := compute.DefaultParams()
	return &Config{
		Agent: AgentConfig{
			AnalysisInterval: DefaultAnalysisInterval,
			BufferSize:       DefaultBufferSize,
			Analysis: AnalysisConfig{
				CoverageThreshold:   p.CoverageThreshold,
				GoodThreshold:       p.GoodThreshold,
				ReportingWindowDays: p.ReportingWindowDays,
				DivertMergeGapDays:  p.DivertMergeGapDays,
				DivertPolicy:        p.DivertPolicy,
				RecentDays:          p.RecentDays,
				Concurrency:         p.Concurrency,
			},
			Catalog: CatalogConfig{
				Type:            CatalogONC,
				Timeout:         DefaultCatalogTimeout,
				DefaultExpected: DefaultExpectedFiles,
				MinExpected:     DefaultMinExpected,
				Cache:           CacheConfig{TTL: DefaultCacheTTL, Prefix: "hydrowatch"},
			},
			Diverts: DivertConfig{LookbackDays: DefaultLookbackDays},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.AnalysisInterval <= 0 {
		return fmt.Errorf("agent.analysis_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if err := validateAuth("agent.server_auth", a.ServerAuth); err != nil {
		return err
	}

	if err := a.Analysis.Params().Validate(); err != nil {
		return fmt.Errorf("agent.analysis: %w", err)
	}

	c := a.Catalog
	switch c.Type {
	case CatalogONC, CatalogPrometheus:
		if c.Endpoint == "" {
			return fmt.Errorf("agent.catalog: endpoint is required for type %q", c.Type)
		}
	case CatalogFixture:
		if c.FixturePath == "" {
			return fmt.Errorf("agent.catalog: fixture_path is required for type %q", c.Type)
		}
	default:
		return fmt.Errorf("agent.catalog: unknown type %q", c.Type)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("agent.catalog.timeout must be positive")
	}
	if c.DefaultExpected <= 0 || c.MinExpected <= 0 {
		return fmt.Errorf("agent.catalog: default_expected and min_expected must be positive")
	}
	if err := validateAuth("agent.catalog.auth", c.Auth); err != nil {
		return err
	}
	if c.Cache.Addr != "" && c.Cache.TTL <= 0 {
		return fmt.Errorf("agent.catalog.cache.ttl must be positive")
	}

	if a.Diverts.LookbackDays < 0 {
		return fmt.Errorf("agent.diverts.lookback_days must not be negative")
	}

	if len(a.Locations) == 0 {
		return fmt.Errorf("agent.locations: at least one location is required")
	}
	if _, err := compute.NewLocationTable(a.Locations); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	if a.Publish.Kafka.Enabled() && a.Publish.Kafka.Topic == "" {
		return fmt.Errorf("agent.publish.kafka.topic is required when brokers are set")
	}
	return nil
}

func validateAuth(field string, a AuthConfig) error {
	switch a.Mode {
	case "mtls", "apikey", "bearer", "basic", "token", "none", "":
	default:
		return fmt.Errorf("%s: unknown auth mode %q", field, a.Mode)
	}
	return nil
}
