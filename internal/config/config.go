// Package config handles loading and validating api-vault-mcp configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	LogLevel      string               `json:"log_level,omitempty" yaml:"log_level,omitempty"` // "debug", "info" (default), "warn", "error".
	Store         StoreConfig          `json:"store" yaml:"store"`
	AccessLog     AccessLogConfig      `json:"access_log" yaml:"access_log"`
	Server        ServerConfig         `json:"server" yaml:"server"`
	Admin         *AdminConfig         `json:"admin,omitempty" yaml:"admin,omitempty"`                 // nil = admin HTTP API disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// StoreConfig configures the api-vault executable client.
type StoreConfig struct {
	Binary         string `json:"binary,omitempty" yaml:"binary,omitempty"`             // Explicit path. Empty = discover. Override: API_VAULT_BINARY.
	PasswordEnv    string `json:"password_env,omitempty" yaml:"password_env,omitempty"` // Default: API_VAULT_PASSWORD. Override: API_VAULT_PASSWORD_ENV.
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Timeout returns the per-invocation timeout. Default: 10s.
func (s StoreConfig) Timeout() time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

// AccessLogConfig selects where credential accesses are recorded.
type AccessLogConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"` // "file" (default), "sqlite" or "postgres".
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`     // File or SQLite path. Default: ~/.api-vault/approvals.json. Override: API_VAULT_LOG_PATH.
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`       // PostgreSQL connection string. Override: API_VAULT_LOG_DSN.
}

// AccessLogDriver returns the configured driver, defaulting to "file".
func (a AccessLogConfig) AccessLogDriver() string {
	if a.Driver != "" {
		return a.Driver
	}
	return "file"
}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	Transport  string `json:"transport,omitempty" yaml:"transport,omitempty"`     // "stdio" (default) or "http".
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"` // For http. Default: 127.0.0.1:8790.

	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // Per tool. Zero = unlimited.
}

// RateLimitConfig configures a token bucket.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
	BurstSize         int `json:"burst_size,omitempty" yaml:"burst_size,omitempty"`
}

// TransportName returns the transport, defaulting to "stdio".
func (s ServerConfig) TransportName() string {
	if s.Transport != "" {
		return s.Transport
	}
	return "stdio"
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return "127.0.0.1:8790"
}

// AdminConfig configures the admin HTTP API (health, metrics, access log).
type AdminConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // Default: 127.0.0.1:8791
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Required for /v1 routes when set. Override: API_VAULT_ADMIN_KEY.

	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // Per client address. Zero = unlimited.
}

// Addr returns the admin listen address.
func (a *AdminConfig) Addr() string {
	if a != nil && a.ListenAddr != "" {
		return a.ListenAddr
	}
	return "127.0.0.1:8791"
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "api-vault-mcp"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`
}

// DefaultConfigPath returns the default config file path (~/.api-vault/mcp.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mcp.yaml"
	}
	return filepath.Join(home, ".api-vault", "mcp.yaml")
}

// DefaultAccessLogPath returns ~/.api-vault/approvals.json.
func DefaultAccessLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".api-vault", "approvals.json")
	}
	return filepath.Join(home, ".api-vault", "approvals.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	return finish(&cfg)
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// (with environment overrides applied) instead of an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(&Config{})
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("API_VAULT_BINARY"); v != "" {
		cfg.Store.Binary = v
	}
	if v := os.Getenv("API_VAULT_PASSWORD_ENV"); v != "" {
		cfg.Store.PasswordEnv = v
	}
	if v := os.Getenv("API_VAULT_LOG_PATH"); v != "" {
		cfg.AccessLog.Path = v
	}
	if v := os.Getenv("API_VAULT_LOG_DSN"); v != "" {
		cfg.AccessLog.DSN = v
	}
	if v := os.Getenv("API_VAULT_MCP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("API_VAULT_ADMIN_KEY"); v != "" && cfg.Admin != nil {
		cfg.Admin.APIKey = v
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// AccessLogPath returns the resolved file or SQLite path of the access log.
func (c *Config) AccessLogPath() string {
	path := c.AccessLog.Path
	if path == "" {
		if c.AccessLog.AccessLogDriver() == "sqlite" {
			return filepath.Join(filepath.Dir(DefaultAccessLogPath()), "approvals.db")
		}
		return DefaultAccessLogPath()
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return path
	}
	return resolved
}

// ResolvedStoreBinary returns the explicit store binary with ~ expanded.
func (c *Config) ResolvedStoreBinary() string {
	if c.Store.Binary == "" {
		return ""
	}
	resolved, err := resolvePath(c.Store.Binary)
	if err != nil {
		return c.Store.Binary
	}
	return resolved
}

// Validate checks the config for unsupported values. Load runs it; callers
// that modify a loaded Config run it again.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not supported", c.LogLevel)
	}
	if c.Store.TimeoutSeconds < 0 {
		return fmt.Errorf("store.timeout_seconds must not be negative")
	}
	if err := c.Server.RateLimit.validate("server.rate_limit"); err != nil {
		return err
	}
	if c.Admin != nil {
		if err := c.Admin.RateLimit.validate("admin.rate_limit"); err != nil {
			return err
		}
	}
	switch c.AccessLog.AccessLogDriver() {
	case "file", "sqlite":
	case "postgres":
		if c.AccessLog.DSN == "" {
			return fmt.Errorf("access_log.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("access_log.driver %q is not supported (use file, sqlite or postgres)", c.AccessLog.Driver)
	}
	switch c.Server.TransportName() {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport %q is not supported (use stdio or http)", c.Server.Transport)
	}
	if t := c.tracing(); t != nil && t.Enabled {
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0 and 1")
		}
	}
	return nil
}

func (c *Config) tracing() *TracingConfig {
	if c.Observability == nil {
		return nil
	}
	return c.Observability.Tracing
}

func (r RateLimitConfig) validate(field string) error {
	if r.RequestsPerMinute < 0 || r.BurstSize < 0 {
		return fmt.Errorf("%s values must not be negative", field)
	}
	return nil
}
