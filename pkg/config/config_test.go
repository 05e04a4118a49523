package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalYAML = `
backends:
  openai:
    url: https://api.openai.example/v1
    api_key: sk-test
`

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 300*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 10000, cfg.Storage.MaxSize)
	assert.Equal(t, 100, cfg.Usage.DailyLimit)
	assert.True(t, cfg.Observability.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Observability.Metrics.Path)
}

func TestLoadFullYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
server:
  port: 9999
  write_timeout: 600s
backends:
  openai:
    url: https://api.openai.example/v1
    api_key: sk-a
  anthropic:
    url: https://api.anthropic.example
    api_key: sk-b
storage:
  type: memory
  max_size: 42
moderation:
  blocklist: [badword]
memory:
  enabled: true
  max_events: 3
usage:
  daily_limit: 7
tools:
  enabled: [get_weather]
mcp:
  servers:
    - name: calc
      transport: sse
      url: https://mcp.example/sse
      headers:
        Authorization: Bearer tok
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 600*time.Second, cfg.Server.WriteTimeout)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "sk-b", cfg.Backends["anthropic"].APIKey)
	assert.Equal(t, 42, cfg.Storage.MaxSize)
	assert.Equal(t, []string{"badword"}, cfg.Moderation.Blocklist)
	assert.True(t, cfg.Memory.Enabled)
	assert.Equal(t, 3, cfg.Memory.MaxEvents)
	assert.Equal(t, 7, cfg.Usage.DailyLimit)
	assert.Equal(t, []string{"get_weather"}, cfg.Tools.Enabled)
	require.Len(t, cfg.MCP.Servers, 1)
	assert.Equal(t, "calc", cfg.MCP.Servers[0].Name)
	assert.Equal(t, "Bearer tok", cfg.MCP.Servers[0].Headers["Authorization"])
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", minimalYAML)

	t.Setenv("UNICHAT_PORT", "7070")
	t.Setenv("UNICHAT_STORAGE_SIZE", "5")
	t.Setenv("UNICHAT_OPENAI_API_KEY", "sk-from-env")
	t.Setenv("UNICHAT_ANTHROPIC_URL", "https://anthropic.env.example")
	t.Setenv("UNICHAT_ANTHROPIC_API_KEY", "sk-anthropic")
	t.Setenv("UNICHAT_DAILY_LIMIT", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Storage.MaxSize)
	assert.Equal(t, "sk-from-env", cfg.Backends["openai"].APIKey)
	assert.Equal(t, "https://anthropic.env.example", cfg.Backends["anthropic"].URL)
	assert.Equal(t, 9, cfg.Usage.DailyLimit)
}

func TestAPIKeyFileReference(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeFile(t, dir, "openai.key", "sk-from-file\n")
	path := writeFile(t, dir, "config.yaml", `
backends:
  openai:
    url: https://api.openai.example/v1
    api_key_file: `+keyPath+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.Backends["openai"].APIKey)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no backends",
			mutate:  func(c *Config) { c.Backends = nil },
			wantErr: "at least one backend",
		},
		{
			name: "unknown backend id",
			mutate: func(c *Config) {
				c.Backends["mistral"] = BackendConfig{URL: "https://x"}
			},
			wantErr: "unknown backend id",
		},
		{
			name: "backend without url",
			mutate: func(c *Config) {
				c.Backends["openai"] = BackendConfig{}
			},
			wantErr: "url is required",
		},
		{
			name:    "bad storage type",
			mutate:  func(c *Config) { c.Storage.Type = "redis" },
			wantErr: "storage.type",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Storage.Type = "postgres" },
			wantErr: "storage.postgres.dsn",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name: "mcp server without name",
			mutate: func(c *Config) {
				c.MCP.Servers = []MCPServerConfig{{URL: "https://mcp.example"}}
			},
			wantErr: "mcp.servers[0].name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Backends = map[string]BackendConfig{
				"openai": {URL: "https://api.openai.example/v1"},
			}
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDiscoverConfigFileExplicitWins(t *testing.T) {
	dir := t.TempDir()
	explicit := writeFile(t, dir, "explicit.yaml", minimalYAML)
	t.Setenv("UNICHAT_CONFIG", filepath.Join(dir, "ignored.yaml"))

	assert.Equal(t, explicit, discoverConfigFile(explicit))
	assert.Equal(t, filepath.Join(dir, "ignored.yaml"), discoverConfigFile(""))
}
