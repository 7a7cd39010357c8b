// Package config provides configuration structures and loading logic for the relay.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-relay/pkg/domain"
	"github.com/polisai/polis-relay/pkg/router"
)

const (
	defaultPort      = 8000
	defaultAvatarURL = "https://via.placeholder.com/150"
	defaultPublicDir = "./public"
)

// Config holds the process-wide configuration. It is built once at startup
// and treated as read-only afterwards.
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Auth      AuthConfig          `yaml:"auth"`
	Upstream  UpstreamConfig      `yaml:"upstream"`
	Routes    []router.Definition `yaml:"routes"`
	Telemetry TelemetryConfig     `yaml:"telemetry"`
	Logging   LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP listeners.
type ServerConfig struct {
	Domain       string `yaml:"domain"`
	Port         int    `yaml:"port"`
	AdminAddress string `yaml:"admin_address"`
	PublicDir    string `yaml:"public_dir"`
	AvatarURL    string `yaml:"avatar_url"`
}

// AuthConfig holds the shared secret guarding the dashboard.
type AuthConfig struct {
	Password string `yaml:"password"`
}

// UpstreamConfig tunes outbound calls.
type UpstreamConfig struct {
	// Timeout bounds a whole upstream exchange. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	Insecure     bool              `yaml:"insecure"`
	Environment  string            `yaml:"environment"`
	Headers      map[string]string `yaml:"headers"`
	ResourceTags map[string]string `yaml:"resource_tags"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file or environment
// override is present. Domain is left empty and must be supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      defaultPort,
			PublicDir: defaultPublicDir,
			AvatarURL: defaultAvatarURL,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
// An empty path skips the file. Overrides run after the environment and
// before validation, which lets command line flags take precedence.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("PROXY_DOMAIN"); val != "" {
		cfg.Server.Domain = val
	}
	if val := os.Getenv("PROXY_PASSWORD"); val != "" {
		cfg.Auth.Password = val
	}
	if val := os.Getenv("PROXY_PORT"); val != "" {
		port, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("PROXY_PORT %q is not a number: %w", val, domain.ErrConfigInvalid)
		}
		cfg.Server.Port = port
	}
	if val := os.Getenv("AVATAR_URL"); val != "" {
		cfg.Server.AvatarURL = val
	}
	if val := os.Getenv("PROXY_PUBLIC_DIR"); val != "" {
		cfg.Server.PublicDir = val
	}
	if val := os.Getenv("PROXY_ADMIN_ADDR"); val != "" {
		cfg.Server.AdminAddress = val
	}

	if val := os.Getenv("PROXY_UPSTREAM_TIMEOUT"); val != "" {
		timeout, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("PROXY_UPSTREAM_TIMEOUT %q: %w", val, domain.ErrConfigInvalid)
		}
		cfg.Upstream.Timeout = timeout
	}

	if val := os.Getenv("PROXY_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("PROXY_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("PROXY_OTLP_HEADERS"); val != "" {
		headers, err := parseKeyValues(val)
		if err != nil {
			return fmt.Errorf("PROXY_OTLP_HEADERS: %w", err)
		}
		cfg.Telemetry.Headers = headers
	}
	if val := os.Getenv("PROXY_ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}

	if val := os.Getenv("PROXY_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("PROXY_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}

	return nil
}

// parseKeyValues parses "k1=v1,k2=v2". Keys must be non-empty.
func parseKeyValues(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("entry %q is not key=value: %w", pair, domain.ErrConfigInvalid)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// Validate performs comprehensive validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream configuration: %w", err)
	}

	if _, err := c.RouteTable(); err != nil {
		return fmt.Errorf("routes configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	return nil
}

// RouteTable builds the immutable route table, falling back to the
// compiled-in defaults when no routes are configured.
func (c *Config) RouteTable() (*router.Table, error) {
	defs := c.Routes
	if len(defs) == 0 {
		defs = router.DefaultDefinitions()
	}
	return router.NewTable(defs)
}

// AuthEnabled reports whether the dashboard is password protected.
func (c *Config) AuthEnabled() bool {
	return c.Auth.Password != ""
}

// ListenAddress is the data plane listen address on all interfaces.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort("", strconv.Itoa(c.Server.Port))
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	c.Domain = strings.TrimSpace(c.Domain)
	if c.Domain == "" {
		return fmt.Errorf("PROXY_DOMAIN must be set: %w", domain.ErrMissingDomain)
	}

	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range: %w", c.Port, domain.ErrConfigInvalid)
	}

	if strings.TrimSpace(c.PublicDir) == "" {
		c.PublicDir = defaultPublicDir
	}
	if strings.TrimSpace(c.AvatarURL) == "" {
		c.AvatarURL = defaultAvatarURL
	}

	return nil
}

// Validate performs validation of upstream configuration
func (c *UpstreamConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout %s must not be negative: %w", c.Timeout, domain.ErrConfigInvalid)
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	// Set default log level if not provided
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level // Normalize to lowercase
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error: %w", c.Level, domain.ErrConfigInvalid)
	}
}

// Warnings lists non-fatal configuration concerns to print at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if !c.AuthEnabled() {
		warnings = append(warnings, "PROXY_PASSWORD is not set; authentication is disabled")
	}
	host := c.Server.Domain
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" || net.ParseIP(host) != nil {
		warnings = append(warnings, fmt.Sprintf("domain %q does not look like a TLS-terminated public host", c.Server.Domain))
	}
	return warnings
}
