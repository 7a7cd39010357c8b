package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/polisai/polis-relay/pkg/domain"
)

func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PROXY_DOMAIN", "PROXY_PASSWORD", "PROXY_PORT", "AVATAR_URL",
		"PROXY_PUBLIC_DIR", "PROXY_ADMIN_ADDR", "PROXY_UPSTREAM_TIMEOUT",
		"PROXY_OTLP_ENDPOINT", "PROXY_OTLP_INSECURE", "PROXY_OTLP_HEADERS", "PROXY_ENVIRONMENT",
		"PROXY_LOG_LEVEL", "PROXY_LOG_PRETTY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("PROXY_DOMAIN", "relay.example.com")
	t.Setenv("PROXY_PASSWORD", "hunter2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Domain != "relay.example.com" {
		t.Errorf("Expected domain relay.example.com, got %q", cfg.Server.Domain)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.ListenAddress() != ":8000" {
		t.Errorf("Expected listen address :8000, got %q", cfg.ListenAddress())
	}
	if !cfg.AuthEnabled() {
		t.Error("Expected auth to be enabled")
	}
	if cfg.Server.AvatarURL != "https://via.placeholder.com/150" {
		t.Errorf("Unexpected default avatar %q", cfg.Server.AvatarURL)
	}
	if cfg.Upstream.Timeout != 0 {
		t.Errorf("Expected no upstream timeout by default, got %s", cfg.Upstream.Timeout)
	}

	table, err := cfg.RouteTable()
	if err != nil {
		t.Fatalf("Failed to build route table: %v", err)
	}
	if table.Len() != 4 {
		t.Errorf("Expected 4 default routes, got %d", table.Len())
	}
}

func TestLoad_MissingDomain(t *testing.T) {
	clearRelayEnv(t)

	_, err := Load("")
	if err == nil {
		t.Fatal("Expected error for missing domain")
	}
	if !errors.Is(err, domain.ErrMissingDomain) {
		t.Errorf("Expected ErrMissingDomain, got %v", err)
	}
}

func TestLoad_PasswordOptional(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("PROXY_DOMAIN", "relay.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("Expected auth to be disabled without a password")
	}
	if len(cfg.Warnings()) == 0 {
		t.Error("Expected a warning about disabled authentication")
	}
}

func TestLoad_FileWithEnvOverrides(t *testing.T) {
	clearRelayEnv(t)

	configContent := `
server:
  domain: "file.example.com"
  port: 9000
  admin_address: ":19090"
  public_dir: "/srv/public"
auth:
  password: "from-file"
upstream:
  timeout: 45s
routes:
  - prefix: /anthropic
    upstream: https://api.anthropic.com
  - prefix: /openai
    upstream: https://api.openai.com
logging:
  level: "DEBUG"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "relay.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("PROXY_PORT", "8443")
	t.Setenv("PROXY_PASSWORD", "from-env")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Domain != "file.example.com" {
		t.Errorf("Expected domain from file, got %q", cfg.Server.Domain)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("Expected env port 8443 to win, got %d", cfg.Server.Port)
	}
	if cfg.Auth.Password != "from-env" {
		t.Errorf("Expected env password to win, got %q", cfg.Auth.Password)
	}
	if cfg.Server.AdminAddress != ":19090" {
		t.Errorf("Expected admin address :19090, got %q", cfg.Server.AdminAddress)
	}
	if cfg.Server.PublicDir != "/srv/public" {
		t.Errorf("Expected public dir /srv/public, got %q", cfg.Server.PublicDir)
	}
	if cfg.Upstream.Timeout != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %s", cfg.Upstream.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected normalised level debug, got %q", cfg.Logging.Level)
	}

	table, err := cfg.RouteTable()
	if err != nil {
		t.Fatalf("Failed to build route table: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Expected configured routes to replace defaults, got %d routes", table.Len())
	}
	if !table.IsAPIPath("/anthropic/v1/messages") {
		t.Error("Expected /anthropic to be routed")
	}
	if table.IsAPIPath("/xai/v1/models") {
		t.Error("Expected default /xai route to be replaced")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "non-numeric port", env: map[string]string{"PROXY_PORT": "eighty"}},
		{name: "port out of range", env: map[string]string{"PROXY_PORT": "70000"}},
		{name: "bad timeout", env: map[string]string{"PROXY_UPSTREAM_TIMEOUT": "soon"}},
		{name: "negative timeout", env: map[string]string{"PROXY_UPSTREAM_TIMEOUT": "-1s"}},
		{name: "bad log level", env: map[string]string{"PROXY_LOG_LEVEL": "chatty"}},
		{name: "malformed otlp headers", env: map[string]string{"PROXY_OTLP_HEADERS": "api-key"}},
		{name: "empty otlp header key", env: map[string]string{"PROXY_OTLP_HEADERS": "=secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearRelayEnv(t)
			t.Setenv("PROXY_DOMAIN", "relay.example.com")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_TelemetrySettings(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("PROXY_DOMAIN", "relay.example.com")
	t.Setenv("PROXY_OTLP_HEADERS", "api-key=abc, x-tenant = relay ,")
	t.Setenv("PROXY_ENVIRONMENT", "production")

	configPath := filepath.Join(t.TempDir(), "relay.yaml")
	content := `
telemetry:
  otlp_endpoint: collector:4317
  environment: staging
  headers:
    api-key: from-file
  resource_tags:
    team: platform
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telemetry.Environment != "production" {
		t.Errorf("Expected environment from env, got %q", cfg.Telemetry.Environment)
	}
	if len(cfg.Telemetry.Headers) != 2 || cfg.Telemetry.Headers["api-key"] != "abc" || cfg.Telemetry.Headers["x-tenant"] != "relay" {
		t.Errorf("Unexpected headers %v", cfg.Telemetry.Headers)
	}
	if cfg.Telemetry.ResourceTags["team"] != "platform" {
		t.Errorf("Unexpected resource tags %v", cfg.Telemetry.ResourceTags)
	}
	if cfg.Telemetry.OTLPEndpoint != "collector:4317" {
		t.Errorf("Unexpected endpoint %q", cfg.Telemetry.OTLPEndpoint)
	}
}

func TestLoad_InvalidRoutes(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("PROXY_DOMAIN", "relay.example.com")

	configPath := filepath.Join(t.TempDir(), "relay.yaml")
	content := "routes:\n  - prefix: nope\n    upstream: https://api.x.ai\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("Expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("PROXY_DOMAIN", "relay.example.com")

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name      string
		domain    string
		password  string
		wantCount int
	}{
		{name: "public host with password", domain: "relay.example.com", password: "x", wantCount: 0},
		{name: "no password", domain: "relay.example.com", wantCount: 1},
		{name: "localhost", domain: "localhost:8000", password: "x", wantCount: 1},
		{name: "ip and no password", domain: "10.0.0.1", wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.Domain = tt.domain
			cfg.Auth.Password = tt.password
			if got := len(cfg.Warnings()); got != tt.wantCount {
				t.Errorf("Expected %d warnings, got %d: %v", tt.wantCount, got, cfg.Warnings())
			}
		})
	}
}

func TestLoad_OverridesBeatEnvironment(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("PROXY_DOMAIN", "env.example.com")
	t.Setenv("PROXY_PORT", "9000")

	cfg, err := Load("", func(c *Config) {
		c.Server.Port = 9100
	})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Expected override port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Server.Domain != "env.example.com" {
		t.Errorf("Expected env domain, got %q", cfg.Server.Domain)
	}

	_, err = Load("", func(c *Config) { c.Server.Port = 70000 })
	if err == nil {
		t.Fatal("Expected overridden port to be validated")
	}
}
