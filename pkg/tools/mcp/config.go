package mcp

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name identifies the server in logs and routing tables.
	Name string `yaml:"name"`

	// Transport selects the wire transport: "streamable-http" (default)
	// or "sse".
	Transport string `yaml:"transport"`

	// URL is the server endpoint.
	URL string `yaml:"url"`

	// Headers are static HTTP headers added to every request, typically
	// for authentication.
	Headers map[string]string `yaml:"headers"`
}
