// Package config loads and validates the deployment configuration. Business
// logic never reads the environment directly; everything flows through the
// Config struct built once at process start.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hatchflow/provisioning/internal/errors"
)

// Config is the root configuration for the provisioning service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Vault    VaultConfig    `yaml:"vault"`
	Notifier NotifierConfig `yaml:"notifier"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host           string    `yaml:"host"`
	Port           int       `yaml:"port"`
	ReadTimeoutS   int       `yaml:"read_timeout_seconds"`
	WriteTimeoutS  int       `yaml:"write_timeout_seconds"`
	MaxHeaderBytes int       `yaml:"max_header_bytes"`
	AllowedOrigins []string  `yaml:"allowed_origins"`
	RateLimit      RateLimit `yaml:"rate_limit"`
}

// RateLimit throttles API callers. Zero values pick the defaults.
type RateLimit struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	// Backend is one of "postgres", "supabase" or "memory".
	Backend         string `yaml:"backend"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseKey     string `yaml:"supabase_service_key"`
}

// EngineConfig points at the external workflow engine.
type EngineConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// VaultConfig holds the credential decryption key material.
type VaultConfig struct {
	// EncryptionKey is a 32-byte AES key as raw, base64 or hex text.
	EncryptionKey string `yaml:"encryption_key"`
}

// NotifierConfig points at the outbound event webhook. Empty URL disables
// delivery.
type NotifierConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	APIKey     string `yaml:"api_key"`
}

// AuthConfig holds the caller identity token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// AuditConfig controls the request audit trail.
type AuditConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	FilePath   string `yaml:"file_path"`
}

// Load reads configuration from the given YAML file (optional), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Server.Host, "SERVER_HOST")
	overrideString(&c.Database.Backend, "DATABASE_BACKEND")
	overrideString(&c.Database.DSN, "DATABASE_DSN")
	overrideString(&c.Database.SupabaseURL, "SUPABASE_URL")
	overrideString(&c.Database.SupabaseKey, "SUPABASE_SERVICE_KEY")
	overrideString(&c.Engine.BaseURL, "ENGINE_BASE_URL")
	overrideString(&c.Engine.APIKey, "ENGINE_API_KEY")
	overrideString(&c.Vault.EncryptionKey, "CREDENTIALS_ENCRYPTION_KEY")
	overrideString(&c.Notifier.WebhookURL, "NOTIFIER_WEBHOOK_URL")
	overrideString(&c.Notifier.APIKey, "NOTIFIER_API_KEY")
	overrideString(&c.Auth.JWTSecret, "JWT_SECRET")
	overrideString(&c.Logging.Level, "LOG_LEVEL")
	overrideString(&c.Logging.Format, "LOG_FORMAT")
}

func overrideString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeoutS == 0 {
		c.Server.ReadTimeoutS = 15
	}
	if c.Server.WriteTimeoutS == 0 {
		c.Server.WriteTimeoutS = 60
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "memory"
	}
	if c.Audit.MaxEntries == 0 {
		c.Audit.MaxEntries = 200
	}
}

// Validate checks everything the pipeline depends on before any work starts.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.Engine.BaseURL)
	if base == "" {
		return errors.Configuration("engine base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.Configuration("engine base_url must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.Configuration("engine base_url scheme must be http or https")
	}
	if strings.TrimSpace(c.Engine.APIKey) == "" {
		return errors.Configuration("engine api_key is required")
	}
	if strings.TrimSpace(c.Vault.EncryptionKey) == "" {
		return errors.Configuration("vault encryption_key is required")
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.Configuration("auth jwt_secret is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.Database.Backend)) {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.Configuration("database dsn is required for the postgres backend")
		}
	case "supabase":
		if strings.TrimSpace(c.Database.SupabaseURL) == "" || strings.TrimSpace(c.Database.SupabaseKey) == "" {
			return errors.Configuration("supabase_url and supabase_service_key are required for the supabase backend")
		}
	case "memory":
	default:
		return errors.Configuration(fmt.Sprintf("unknown database backend %q", c.Database.Backend))
	}

	return nil
}

// EncryptionKeyBytes decodes the configured key as raw, base64 or hex text
// and requires a 256-bit result.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	value := strings.TrimSpace(c.Vault.EncryptionKey)
	if value == "" {
		return nil, errors.Configuration("vault encryption_key is required")
	}

	if len(value) == 32 {
		return []byte(value), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(value); err == nil && len(decoded) == 32 {
		return decoded, nil
	}

	return nil, errors.Configuration("vault encryption_key must be a 32-byte value as raw, base64 or hex text")
}
