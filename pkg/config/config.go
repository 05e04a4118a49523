// Package config provides unified configuration for the unichat gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (UNICHAT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the unichat gateway.
type Config struct {
	Server        ServerConfig             `yaml:"server"`
	Backends      map[string]BackendConfig `yaml:"backends"`
	Storage       StorageConfig            `yaml:"storage"`
	Moderation    ModerationConfig         `yaml:"moderation"`
	Memory        MemoryConfig             `yaml:"memory"`
	Usage         UsageConfig              `yaml:"usage"`
	Tools         ToolsConfig              `yaml:"tools"`
	MCP           MCPConfig                `yaml:"mcp"`
	Observability ObservabilityConfig      `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 300s, streams are long-lived
}

// BackendConfig holds connection settings for one model backend,
// keyed in Config.Backends by the backend id ("openai", "anthropic",
// "google", "workersai").
type BackendConfig struct {
	URL        string `yaml:"url"` // required
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
}

// StorageConfig holds conversation store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ModerationConfig holds output-moderation settings.
type ModerationConfig struct {
	Blocklist []string `yaml:"blocklist"`
}

// MemoryConfig holds long-term-memory capture settings.
type MemoryConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxEvents int  `yaml:"max_events"` // per completion, 0 = unbounded
}

// UsageConfig holds per-user quota reporting settings.
type UsageConfig struct {
	DailyLimit int `yaml:"daily_limit"` // default: 100
}

// ToolsConfig holds the tool allow-list. A nil Enabled list permits
// every registered tool; an empty non-nil list permits none.
type ToolsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
	Port    int    `yaml:"port"`    // default: 9090
}

// KnownBackends lists the valid Config.Backends keys.
var KnownBackends = []string{"openai", "anthropic", "google", "workersai"}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 300 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Usage: UsageConfig{
			DailyLimit: 100,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
				Port:    9090,
			},
		},
	}
}
