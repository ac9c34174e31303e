// Package config provides configuration types and loading for Deskguard.
//
// Deskguard is configured from a YAML file plus DESKGUARD_* environment
// overrides. The schema is deliberately small: server listener, storage
// backend, audit persistence, API keys, the sample provider used by
// simulations, and optional seed templates.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for Deskguard.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Storage selects the persistence backend for templates and versions.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Audit configures where the append-only audit trail is written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Auth configures file-based API keys.
	// Optional: when empty, only localhost API access works.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Provider configures the external sample provider used by simulations.
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`

	// Tracing enables OpenTelemetry span export to stdout.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// SeedFile is an optional YAML file of templates applied at first boot.
	SeedFile string `yaml:"seed_file" mapstructure:"seed_file"`

	// DevMode enables development defaults (verbose logging, dev API key).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// Use a reverse proxy for TLS.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8085").
	// Defaults to "127.0.0.1:8085" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// StorageConfig selects how templates and versions are persisted.
type StorageConfig struct {
	// Backend is "memory" (with JSON state snapshots) or "sqlite".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`

	// StatePath is the JSON snapshot path for the memory backend.
	// Defaults to "~/.deskguard/state.json".
	StatePath string `yaml:"state_path" mapstructure:"state_path"`

	// SQLitePath is the database file path for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AuditConfig configures audit trail persistence.
type AuditConfig struct {
	// Backend is "file" (JSON Lines with rotation), "sqlite" (same
	// database as sqlite storage), or "memory" (tests/dev).
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=file sqlite memory"`

	// Dir is the directory for audit log files.
	// Defaults to "~/.deskguard/audit".
	Dir string `yaml:"dir" mapstructure:"dir"`

	// RetentionDays is how long rotated files are kept. Defaults to 30.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB caps one audit file before rotation. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
}

// AuthConfig configures file-based API keys.
type AuthConfig struct {
	// APIKeys defines the accepted API keys.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines one API key by its hash, never plaintext.
type APIKeyConfig struct {
	// Label identifies the key in audit entries (e.g., "ops", "ci").
	Label string `yaml:"label" mapstructure:"label" validate:"required"`

	// KeyHash is "sha256:<hex>", bare SHA-256 hex, or an Argon2id PHC hash.
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`
}

// ProviderConfig configures the sample provider simulations fetch from.
type ProviderConfig struct {
	// Endpoint is the provider base URL (e.g., "http://localhost:9090").
	// When empty, simulations run against an empty static provider.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`

	// AuthToken is sent as a Bearer token to the provider.
	AuthToken string `yaml:"auth_token" mapstructure:"auth_token"`

	// Timeout bounds one sample fetch (e.g., "10s"). Defaults to "10s".
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns on span export to stdout. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults — bind to localhost only for security.
	// Users who need network access must explicitly set http_addr.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8085"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.StatePath == "" {
		c.Storage.StatePath = defaultHomePath("state.json")
	}

	if c.Audit.Backend == "" {
		if c.Storage.Backend == "sqlite" {
			c.Audit.Backend = "sqlite"
		} else {
			c.Audit.Backend = "file"
		}
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = defaultHomePath("audit")
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 30
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}

	if c.Provider.Timeout == "" {
		c.Provider.Timeout = "10s"
	}
}

// SetDevDefaults applies permissive defaults for development mode.
// These are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	// Provide a default dev API key if none configured.
	// SHA-256 of "dev-api-key".
	if len(c.Auth.APIKeys) == 0 {
		c.Auth.APIKeys = []APIKeyConfig{
			{
				Label:   "dev",
				KeyHash: "sha256:6e1e4e1b8f8b36d08901cdb51b97841dfe20f5efd2fd2fd00768971408c46274",
			},
		}
	}
}

// defaultHomePath returns ~/.deskguard/<name>, falling back to a
// relative path when the home directory cannot be determined.
func defaultHomePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".deskguard", name)
	}
	return filepath.Join(home, ".deskguard", name)
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
