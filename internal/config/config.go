// ABOUTME: Configuration loading and parsing for adjunct-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete adjunct-gateway configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Model        ModelConfig        `yaml:"model" toml:"model"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" toml:"orchestrator"`
	Mail         MailConfig         `yaml:"mail" toml:"mail"`
	Auth         AuthConfig         `yaml:"auth" toml:"auth"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" toml:"rate_limit"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" toml:"metrics"`
	MCP          MCPConfig          `yaml:"mcp" toml:"mcp"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ModelConfig selects and configures the language model backend
type ModelConfig struct {
	Provider     string        `yaml:"provider" toml:"provider"`
	Name         string        `yaml:"name" toml:"name"`
	APIKey       string        `yaml:"api_key" toml:"api_key"`
	BaseURL      string        `yaml:"base_url" toml:"base_url"`
	MaxTokens    int64         `yaml:"max_tokens" toml:"max_tokens"`
	MaxRetries   *int          `yaml:"max_retries" toml:"max_retries"`
	SystemPrompt string        `yaml:"system_prompt" toml:"system_prompt"`
	Timeout      time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// OrchestratorConfig bounds the model/tool loop
type OrchestratorConfig struct {
	MaxIterations int           `yaml:"max_iterations" toml:"max_iterations"`
	ToolTimeout   time.Duration `yaml:"-" toml:"-"`

	ToolTimeoutRaw string `yaml:"tool_timeout" toml:"tool_timeout"`
}

// MailConfig holds the SMTP relay used by the email tool.
// The email tool is disabled when Host is empty.
type MailConfig struct {
	Host           string `yaml:"host" toml:"host"`
	Port           int    `yaml:"port" toml:"port"`
	Username       string `yaml:"username" toml:"username"`
	Password       string `yaml:"password" toml:"password"`
	From           string `yaml:"from" toml:"from"`
	RenderMarkdown bool   `yaml:"render_markdown" toml:"render_markdown"`
	DisableTLS     bool   `yaml:"disable_tls" toml:"disable_tls"`
}

// Enabled reports whether an SMTP relay is configured.
func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// RateLimitConfig holds the per-sender limit on /ask-ai.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// MCPConfig controls the MCP endpoint that exposes the builtin tools
type MCPConfig struct {
	Enabled    bool          `yaml:"enabled" toml:"enabled"`
	SessionTTL time.Duration `yaml:"-" toml:"-"`

	SessionTTLRaw string `yaml:"session_ttl" toml:"session_ttl"`
}

// Defaults applied by Load when a field is left empty.
const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultModelProvider   = "anthropic"
	DefaultModelTimeout    = 60 * time.Second
	DefaultMaxRetries      = 0
	DefaultMaxIterations   = 5
	DefaultToolTimeout     = 30 * time.Second
	DefaultMailPort        = 587
	DefaultMetricsPath     = "/metrics"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultMCPSessionTTL   = time.Hour
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if dbPath := os.Getenv("ADJUNCT_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Model.Provider == "" {
		c.Model.Provider = DefaultModelProvider
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = DefaultModelTimeout
	}
	if c.Model.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.Model.MaxRetries = &retries
	}
	if c.Orchestrator.MaxIterations == 0 {
		c.Orchestrator.MaxIterations = DefaultMaxIterations
	}
	if c.Orchestrator.ToolTimeout == 0 {
		c.Orchestrator.ToolTimeout = DefaultToolTimeout
	}
	if c.Mail.Enabled() && c.Mail.Port == 0 {
		c.Mail.Port = DefaultMailPort
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.MCP.SessionTTL == 0 {
		c.MCP.SessionTTL = DefaultMCPSessionTTL
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Model.Provider != DefaultModelProvider {
		return fmt.Errorf("model.provider %q is not supported (use %q)", c.Model.Provider, DefaultModelProvider)
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model.max_tokens must not be negative")
	}

	if c.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("orchestrator.max_iterations must be at least 1, got %d", c.Orchestrator.MaxIterations)
	}

	if c.Mail.Enabled() {
		if c.Mail.From == "" {
			return fmt.Errorf("mail.from is required when mail.host is set")
		}
		if _, err := mail.ParseAddress(c.Mail.From); err != nil {
			return fmt.Errorf("mail.from %q is not a valid address: %w", c.Mail.From, err)
		}
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1 when rate limiting is enabled")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"model.timeout", cfg.Model.TimeoutRaw, &cfg.Model.Timeout},
		{"orchestrator.tool_timeout", cfg.Orchestrator.ToolTimeoutRaw, &cfg.Orchestrator.ToolTimeout},
		{"mcp.session_ttl", cfg.MCP.SessionTTLRaw, &cfg.MCP.SessionTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}

// DefaultPath returns the path to the gateway config file.
// Priority: ADJUNCT_CONFIG env var > XDG_CONFIG_HOME/adjunct/gateway.yaml > ~/.config/adjunct/gateway.yaml
func DefaultPath() string {
	if envPath := os.Getenv("ADJUNCT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "adjunct", "gateway.yaml")
}

// Sample is a starter configuration written by `adjunct-gateway init`.
const Sample = `# adjunct-gateway configuration
server:
  http_addr: "0.0.0.0:5000"
  shutdown_timeout: "10s"

database:
  path: "./adjunct.db"

model:
  provider: "anthropic"
  api_key: "${ANTHROPIC_API_KEY}"
  max_tokens: 1024
  timeout: "60s"

orchestrator:
  max_iterations: 5
  tool_timeout: "30s"

# Leave mail.host empty to disable the email tool.
mail:
  host: ""
  port: 587
  username: "${SMTP_USERNAME}"
  password: "${SMTP_PASSWORD}"
  from: "adjunct@example.com"
  render_markdown: true

auth:
  jwt_secret: "${ADJUNCT_JWT_SECRET}"

rate_limit:
  requests_per_second: 1
  burst: 5

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"

# Serve the builtin tools to MCP clients at /mcp.
mcp:
  enabled: false
  session_ttl: "1h"
`
