package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, UNICHAT_CONFIG env, ./config.yaml, /etc/unichat/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. UNICHAT_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/unichat/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("UNICHAT_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/unichat/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps UNICHAT_* environment variables to config
// fields. Per-backend API keys and URLs use the backend id in the
// variable name, e.g. UNICHAT_OPENAI_API_KEY, UNICHAT_ANTHROPIC_URL.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UNICHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("UNICHAT_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("UNICHAT_STORAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxSize = size
		}
	}
	if v := os.Getenv("UNICHAT_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("UNICHAT_DAILY_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Usage.DailyLimit = limit
		}
	}
	if v := os.Getenv("UNICHAT_MEMORY_ENABLED"); v != "" {
		cfg.Memory.Enabled = v == "true" || v == "1"
	}

	for _, id := range KnownBackends {
		prefix := "UNICHAT_" + strings.ToUpper(id) + "_"
		url := os.Getenv(prefix + "URL")
		key := os.Getenv(prefix + "API_KEY")
		if url == "" && key == "" {
			continue
		}
		if cfg.Backends == nil {
			cfg.Backends = make(map[string]BackendConfig)
		}
		bc := cfg.Backends[id]
		if url != "" {
			bc.URL = url
		}
		if key != "" {
			bc.APIKey = key
		}
		cfg.Backends[id] = bc
	}

	// UNICHAT_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("UNICHAT_MCP_SERVERS"); v != "" {
		var servers []MCPServerConfig
		if err := json.Unmarshal([]byte(v), &servers); err == nil && len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}
}

// resolveFileReferences reads _file fields and populates the
// corresponding value fields. For each field ending in _file, if the
// value field is empty and the file field is set, the file is read,
// whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	for id, bc := range cfg.Backends {
		if bc.APIKeyFile != "" && bc.APIKey == "" {
			val, err := readSecretFile(bc.APIKeyFile)
			if err != nil {
				return fmt.Errorf("backends.%s.api_key_file: %w", id, err)
			}
			bc.APIKey = val
			cfg.Backends[id] = bc
		}
	}

	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
