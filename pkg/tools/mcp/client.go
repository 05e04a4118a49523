package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/debug"
	"github.com/unichat-ai/unichat/pkg/tools"
)

// Client wraps an MCP SDK client and session for a single server
// connection. It handles the connection lifecycle, tool discovery, and
// tool execution.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu            sync.Mutex
	cachedTools   []api.ToolDefinition
	toolsResolved bool
}

// NewClient creates a Client for the given server configuration. Call
// Connect to establish the connection.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the MCP connection to the server, performing the
// protocol handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport establishes the MCP connection using the given
// transport. If transport is nil, one is created from the server
// configuration. Tests use this to inject an in-memory transport.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "unichat",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

func (c *Client) createTransport() (mcp.Transport, error) {
	httpClient := c.buildHTTPClient()

	switch c.cfg.Transport {
	case "sse":
		transport := &mcp.SSEClientTransport{
			Endpoint: c.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &mcp.StreamableClientTransport{
			Endpoint: c.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// buildHTTPClient returns an HTTP client that injects the configured
// static headers, or nil when none are configured.
func (c *Client) buildHTTPClient() *http.Client {
	if len(c.cfg.Headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: c.cfg.Headers,
		},
	}
}

// headerTransport is an http.RoundTripper that adds custom headers to
// every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// DiscoverTools queries the MCP server for available tools, converts
// them to api.ToolDefinition, and caches the result. Subsequent calls
// return the cached tools.
func (c *Client) DiscoverTools(ctx context.Context) ([]api.ToolDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.toolsResolved {
		return c.cachedTools, nil
	}

	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var toolDefs []api.ToolDefinition
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		td, convErr := convertTool(tool)
		if convErr != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, convErr)
		}
		toolDefs = append(toolDefs, td)
	}

	c.cachedTools = toolDefs
	c.toolsResolved = true
	return toolDefs, nil
}

// CallTool executes a tool call on the MCP server. Execution failures
// are reported as error results, not Go errors, so a failing call never
// aborts a batch.
func (c *Client) CallTool(ctx context.Context, call api.ToolCall) tools.Result {
	debug.Log("mcp", "calling tool", "server", c.cfg.Name, "tool", call.Function.Name,
		"args", debug.Truncate(call.Function.Arguments, 256))
	if c.session == nil {
		return tools.Result{
			CallID:  call.ID,
			Name:    call.Function.Name,
			Output:  fmt.Sprintf("MCP client %q not connected", c.cfg.Name),
			IsError: true,
		}
	}

	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return tools.Result{
				CallID:  call.ID,
				Name:    call.Function.Name,
				Output:  fmt.Sprintf("invalid arguments JSON: %v", err),
				IsError: true,
			}
		}
	}

	params := &mcp.CallToolParams{
		Name:      call.Function.Name,
		Arguments: args,
	}

	result, err := c.session.CallTool(ctx, params)
	if err != nil {
		return tools.Result{
			CallID:  call.ID,
			Name:    call.Function.Name,
			Output:  fmt.Sprintf("MCP tool call error: %v", err),
			IsError: true,
		}
	}

	return convertResult(call, result)
}

// Close closes the MCP session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func convertTool(t *mcp.Tool) (api.ToolDefinition, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return api.ToolDefinition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}

	return api.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}, nil
}

func convertResult(call api.ToolCall, result *mcp.CallToolResult) tools.Result {
	var output string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if output != "" {
				output += "\n"
			}
			output += tc.Text
		}
	}

	return tools.Result{
		CallID:  call.ID,
		Name:    call.Function.Name,
		Output:  output,
		IsError: result.IsError,
	}
}
