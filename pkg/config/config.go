// Package config provides the gateway settings and their loading logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polisai/toolgate/pkg/logging"
	"github.com/polisai/toolgate/pkg/telemetry"
)

const (
	defaultAddress         = ":8080"
	defaultShutdownTimeout = 15 * time.Second
)

// Config holds the global configuration for the gateway.
type Config struct {
	Server ServerConfig `yaml:"server"`

	RegistryPath  string `yaml:"registry_path"`
	WatchRegistry bool   `yaml:"watch_registry"`

	Secrets   SecretsConfig    `yaml:"secrets"`
	Audit     AuditConfig      `yaml:"audit"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Logging   logging.Config   `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TLS             *TLSConfig    `yaml:"tls,omitempty"`
}

// SecretsConfig selects where backend credentials are read from.
type SecretsConfig struct {
	// DotenvFile, when set, is layered over the process environment.
	DotenvFile      string `yaml:"dotenv_file"`
	ServiceTokenKey string `yaml:"service_token_key"`
}

// AuditConfig configures audit sinks beyond the process log.
type AuditConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         defaultAddress,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
// ${VAR} references in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("TOOLGATE_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("TOOLGATE_REGISTRY"); val != "" {
		cfg.RegistryPath = val
	}
	if val, err := strconv.ParseBool(os.Getenv("TOOLGATE_WATCH_REGISTRY")); err == nil {
		cfg.WatchRegistry = val
	}

	if val := os.Getenv("TOOLGATE_DOTENV_FILE"); val != "" {
		cfg.Secrets.DotenvFile = val
	}
	if val := os.Getenv("TOOLGATE_AUDIT_SQLITE"); val != "" {
		cfg.Audit.SQLitePath = val
	}

	if val := os.Getenv("TOOLGATE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.Endpoint = val
	}
	if val := os.Getenv("TOOLGATE_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("TOOLGATE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("TOOLGATE_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("TOOLGATE_TLS_CERT_FILE"); val != "" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &TLSConfig{}
		}
		cfg.Server.TLS.Enabled = true
		cfg.Server.TLS.CertFile = val
	}
	if val := os.Getenv("TOOLGATE_TLS_KEY_FILE"); val != "" {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &TLSConfig{}
		}
		cfg.Server.TLS.KeyFile = val
	}
}

// Validate performs validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	if err := validateLogging(&c.Logging); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	if r := c.Telemetry.SampleRatio; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("telemetry configuration: sample_ratio must be within [0, 1], got %v", *r)
	}

	return nil
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = defaultAddress
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return fmt.Errorf("TLS configuration: %w", err)
		}
	}
	return nil
}

func validateLogging(c *logging.Config) error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q (valid levels: debug, info, warn, error)", c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "":
		c.Format = "json"
	case "json", "text":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q (valid formats: json, text)", c.Format)
	}
	return nil
}
