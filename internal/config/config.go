// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/velov-data/velov/internal/database"
	"github.com/velov-data/velov/internal/gbfs"
)

// Store backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// ErrInvalidConfig is returned when the loaded configuration fails
// validation or an environment value cannot be parsed.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the configuration shared by the worker and the API.
type Config struct {
	Env      string `yaml:"env"`
	Port     string `yaml:"port" validate:"required,numeric"`
	LogLevel string `yaml:"log_level" validate:"oneof=trace debug info warn error"`

	// RequireTLS rejects API requests forwarded over plain HTTP.
	RequireTLS bool `yaml:"require_tls"`

	GBFS      GBFSConfig      `yaml:"gbfs"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Store     StoreConfig     `yaml:"store"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" validate:"dive,required"`
}

// GBFSConfig configures the feed client.
type GBFSConfig struct {
	DiscoveryURL string        `yaml:"discovery_url" validate:"required,url"`
	Region       string        `yaml:"region" validate:"required"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries   uint64        `yaml:"max_retries"`
	UserAgent    string        `yaml:"user_agent"`
}

// IngestConfig configures how ingest runs are scheduled.
type IngestConfig struct {
	// Interval between runs. Zero runs once and exits.
	Interval   time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	Concurrent bool          `yaml:"concurrent"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend     string          `yaml:"backend" validate:"oneof=supabase postgres"`
	SupabaseURL string          `yaml:"supabase_url" validate:"required_if=Backend supabase,omitempty,url"`
	SupabaseKey string          `yaml:"supabase_key" validate:"required_if=Backend supabase"`
	Database    database.Config `yaml:"database" validate:"-"`
}

// PubSubConfig enables the Pub/Sub trigger when Subscription is set.
type PubSubConfig struct {
	ProjectID    string `yaml:"project_id" validate:"required_with=Subscription"`
	Subscription string `yaml:"subscription"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Env:      "development",
		Port:     "8080",
		LogLevel: "info",
		GBFS: GBFSConfig{
			DiscoveryURL: gbfs.DefaultDiscoveryURL,
			Region:       gbfs.DefaultRegion,
			Timeout:      10 * time.Second,
		},
		Ingest: IngestConfig{
			Timeout: 2 * time.Minute,
		},
		Store: StoreConfig{
			Backend:  BackendSupabase,
			Database: database.DefaultConfig(),
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1,
		},
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	}
}

// Load reads .env (if present), the YAML file named by INGEST_CONFIG_FILE
// (if set) and then the environment. Environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from defaults, the optional YAML overlay
// and the process environment, then validates it.
func FromEnv() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("INGEST_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	p := &envParser{}

	c.Env = getEnvOrDefault("APP_ENV", c.Env)
	c.Port = getEnvOrDefault("APP_PORT", c.Port)
	c.LogLevel = strings.ToLower(getEnvOrDefault("LOG_LEVEL", c.LogLevel))
	c.RequireTLS = p.boolVar("REQUIRE_TLS", c.RequireTLS)

	c.GBFS.DiscoveryURL = getEnvOrDefault("GBFS_DISCOVERY_URL", c.GBFS.DiscoveryURL)
	c.GBFS.Region = getEnvOrDefault("GBFS_REGION", c.GBFS.Region)
	c.GBFS.Timeout = p.durationVar("GBFS_TIMEOUT", c.GBFS.Timeout)
	c.GBFS.MaxRetries = p.uintVar("GBFS_MAX_RETRIES", c.GBFS.MaxRetries)
	c.GBFS.UserAgent = getEnvOrDefault("GBFS_USER_AGENT", c.GBFS.UserAgent)

	c.Ingest.Interval = p.durationVar("INGEST_INTERVAL", c.Ingest.Interval)
	c.Ingest.Timeout = p.durationVar("INGEST_TIMEOUT", c.Ingest.Timeout)
	c.Ingest.Concurrent = p.boolVar("INGEST_CONCURRENT", c.Ingest.Concurrent)

	c.Store.Backend = strings.ToLower(getEnvOrDefault("STORE_BACKEND", c.Store.Backend))
	c.Store.SupabaseURL = getEnvOrDefault("SUPABASE_URL", c.Store.SupabaseURL)
	c.Store.SupabaseKey = getEnvOrDefault("SUPABASE_KEY", c.Store.SupabaseKey)

	db := &c.Store.Database
	db.URL = getEnvOrDefault("DATABASE_URL", db.URL)
	db.Host = getEnvOrDefault("DB_HOST", db.Host)
	db.Port = p.intVar("DB_PORT", db.Port)
	db.User = getEnvOrDefault("DB_USER", db.User)
	db.Password = getEnvOrDefault("DB_PASSWORD", db.Password)
	db.Database = getEnvOrDefault("DB_NAME", db.Database)
	db.SSLMode = getEnvOrDefault("DB_SSL_MODE", db.SSLMode)

	c.PubSub.ProjectID = getEnvOrDefault("PUBSUB_PROJECT_ID", c.PubSub.ProjectID)
	c.PubSub.Subscription = getEnvOrDefault("PUBSUB_SUBSCRIPTION", c.PubSub.Subscription)

	c.Telemetry.Enabled = p.boolVar("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.Endpoint = getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.Insecure = p.boolVar("OTEL_EXPORTER_OTLP_INSECURE", c.Telemetry.Insecure)
	c.Telemetry.SampleRatio = p.floatVar("OTEL_TRACES_SAMPLER_ARG", c.Telemetry.SampleRatio)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}

	return p.err()
}

// Validate checks the configuration. The database section is only
// checked when the postgres backend is selected.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Store.Backend == BackendPostgres {
		if err := v.Struct(c.Store.Database); err != nil {
			return fmt.Errorf("%w: database: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Mode names how the worker is triggered.
func (c *Config) Mode() string {
	switch {
	case c.PubSub.Subscription != "":
		return "pubsub"
	case c.Ingest.Interval > 0:
		return "interval"
	default:
		return "once"
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envParser collects parse errors so every bad variable is reported at once.
type envParser struct {
	errs []error
}

func (p *envParser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (p *envParser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(p.errs...))
}

func (p *envParser) durationVar(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *envParser) intVar(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *envParser) uintVar(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *envParser) floatVar(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *envParser) boolVar(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}
