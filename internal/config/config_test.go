// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:5000"
  shutdown_timeout: "5s"

database:
  path: "./test.db"

model:
  name: "claude-test"
  api_key: "sk-test"
  max_tokens: 2048
  max_retries: 3
  timeout: "45s"

orchestrator:
  max_iterations: 3
  tool_timeout: "10s"

mail:
  host: "smtp.example.com"
  username: "bot"
  password: "secret"
  from: "Adjunct <adjunct@example.com>"
  render_markdown: true

auth:
  jwt_secret: "shh"

rate_limit:
  requests_per_second: 2.5
  burst: 4

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:5000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:5000")
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Model.Provider != "anthropic" {
		t.Errorf("Model.Provider = %q, want default anthropic", cfg.Model.Provider)
	}
	if cfg.Model.Name != "claude-test" || cfg.Model.APIKey != "sk-test" || cfg.Model.MaxTokens != 2048 {
		t.Errorf("unexpected model config: %+v", cfg.Model)
	}
	if cfg.Model.MaxRetries == nil || *cfg.Model.MaxRetries != 3 {
		t.Errorf("Model.MaxRetries = %v, want 3", cfg.Model.MaxRetries)
	}
	if cfg.Model.Timeout != 45*time.Second {
		t.Errorf("Model.Timeout = %v, want 45s", cfg.Model.Timeout)
	}
	if cfg.Orchestrator.MaxIterations != 3 {
		t.Errorf("Orchestrator.MaxIterations = %d, want 3", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Orchestrator.ToolTimeout != 10*time.Second {
		t.Errorf("Orchestrator.ToolTimeout = %v, want 10s", cfg.Orchestrator.ToolTimeout)
	}
	if !cfg.Mail.Enabled() {
		t.Error("Mail.Enabled() = false, want true")
	}
	if cfg.Mail.Port != DefaultMailPort {
		t.Errorf("Mail.Port = %d, want default %d", cfg.Mail.Port, DefaultMailPort)
	}
	if !cfg.Mail.RenderMarkdown {
		t.Error("Mail.RenderMarkdown = false, want true")
	}
	if cfg.Auth.JWTSecret != "shh" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "shh")
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 || cfg.RateLimit.Burst != 4 {
		t.Errorf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("unexpected metrics: %+v", cfg.Metrics)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":5000"
database:
  path: "adjunct.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if cfg.Model.Timeout != DefaultModelTimeout {
		t.Errorf("Model.Timeout = %v, want %v", cfg.Model.Timeout, DefaultModelTimeout)
	}
	if cfg.Model.MaxRetries == nil || *cfg.Model.MaxRetries != DefaultMaxRetries {
		t.Errorf("Model.MaxRetries = %v, want %d", cfg.Model.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Orchestrator.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want %d", cfg.Orchestrator.MaxIterations, DefaultMaxIterations)
	}
	if cfg.Orchestrator.ToolTimeout != DefaultToolTimeout {
		t.Errorf("ToolTimeout = %v, want %v", cfg.Orchestrator.ToolTimeout, DefaultToolTimeout)
	}
	if cfg.Mail.Enabled() {
		t.Error("mail should be disabled without a host")
	}
	if cfg.MCP.Enabled || cfg.MCP.SessionTTL != DefaultMCPSessionTTL {
		t.Errorf("MCP = %+v, want disabled with default TTL", cfg.MCP)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should default to disabled")
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:5000"

[database]
path = "adjunct.db"

[orchestrator]
max_iterations = 8
tool_timeout = "2s"

[rate_limit]
requests_per_second = 1.0
burst = 2
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:5000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Orchestrator.MaxIterations != 8 {
		t.Errorf("MaxIterations = %d, want 8", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Orchestrator.ToolTimeout != 2*time.Second {
		t.Errorf("ToolTimeout = %v, want 2s", cfg.Orchestrator.ToolTimeout)
	}
	if cfg.RateLimit.Burst != 2 {
		t.Errorf("RateLimit.Burst = %d, want 2", cfg.RateLimit.Burst)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_ADJUNCT_KEY", "sk-from-env")
	t.Setenv("TEST_ADJUNCT_DB", "/tmp/from-env.db")

	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":5000"
database:
  path: "${TEST_ADJUNCT_DB}"
model:
  api_key: "${TEST_ADJUNCT_KEY}"
auth:
  jwt_secret: "${TEST_ADJUNCT_UNSET_VAR}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Model.APIKey != "sk-from-env" {
		t.Errorf("Model.APIKey = %q", cfg.Model.APIKey)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Errorf("unset var should expand to empty, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_DBPathOverride(t *testing.T) {
	t.Setenv("ADJUNCT_DB_PATH", "/var/lib/adjunct/override.db")

	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":5000"
database:
  path: "/tmp/file.db"
model:
  api_key: "sk-test"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/var/lib/adjunct/override.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http addr",
			content: "database:\n  path: x.db\n",
			wantErr: "server.http_addr is required",
		},
		{
			name:    "missing database path",
			content: "server:\n  http_addr: \":5000\"\n",
			wantErr: "database.path is required",
		},
		{
			name:    "bad duration",
			content: "server:\n  http_addr: \":5000\"\ndatabase:\n  path: x.db\nmodel:\n  timeout: \"soon\"\n",
			wantErr: "model.timeout",
		},
		{
			name:    "negative duration",
			content: "server:\n  http_addr: \":5000\"\ndatabase:\n  path: x.db\norchestrator:\n  tool_timeout: \"-1s\"\n",
			wantErr: "must be positive",
		},
		{
			name:    "unsupported provider",
			content: "server:\n  http_addr: \":5000\"\ndatabase:\n  path: x.db\nmodel:\n  provider: gemini\n",
			wantErr: "not supported",
		},
		{
			name:    "negative iterations",
			content: "server:\n  http_addr: \":5000\"\ndatabase:\n  path: x.db\norchestrator:\n  max_iterations: -1\n",
			wantErr: "max_iterations",
		},
		{
			name:    "mail without from",
			content: "server:\n  http_addr: \":5000\"\ndatabase:\n  path: x.db\nmail:\n  host: smtp.example.com\n",
			wantErr: "mail.from is required",
		},
		{
			name:    "rate limit without burst",
			content: "server:\n  http_addr: \":5000\"\ndatabase:\n  path: x.db\nrate_limit:\n  requests_per_second: 1\n",
			wantErr: "rate_limit.burst",
		},
		{
			name:    "bad log format",
			content: "server:\n  http_addr: \":5000\"\ndatabase:\n  path: x.db\nlogging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "invalid yaml",
			content: "server: [unclosed",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading error", err)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := Load(writeConfig(t, "gateway.yaml", Sample))
	if err != nil {
		t.Fatalf("Load(Sample) error = %v", err)
	}
	if cfg.Orchestrator.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Orchestrator.MaxIterations)
	}
	if !cfg.Metrics.Enabled {
		t.Error("sample enables metrics")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("ADJUNCT_CONFIG", "/etc/adjunct.yaml")
	if got := DefaultPath(); got != "/etc/adjunct.yaml" {
		t.Errorf("DefaultPath() = %q, want env override", got)
	}

	t.Setenv("ADJUNCT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "adjunct", "gateway.yaml") {
		t.Errorf("DefaultPath() = %q, want XDG path", got)
	}
}
