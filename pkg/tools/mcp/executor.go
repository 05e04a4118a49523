package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/storage"
	"github.com/unichat-ai/unichat/pkg/tools"
)

// Executor routes tool calls to MCP servers. It manages connections to
// multiple servers, discovers their tools lazily, and dispatches each
// call to the server that provides it.
type Executor struct {
	mu sync.RWMutex

	// clients maps server name to its Client.
	clients map[string]*Client

	// toolToServer maps tool name to the server name that provides it.
	toolToServer map[string]string

	discovered bool
}

var _ tools.Executor = (*Executor)(nil)

// NewExecutor creates an Executor over the given MCP clients.
func NewExecutor(clients map[string]*Client) *Executor {
	return &Executor{
		clients:      clients,
		toolToServer: make(map[string]string),
	}
}

// Invoke dispatches each tool call to the MCP server that provides it.
// A call naming a tool no server provides yields an error result; the
// remaining calls still run.
func (e *Executor) Invoke(ctx context.Context, completionID string, p tools.Payload, store storage.ConversationStore, rc tools.RunContext) ([]tools.Result, error) {
	e.ensureDiscovered(ctx)

	results := make([]tools.Result, 0, len(p.Calls))
	for _, call := range p.Calls {
		e.mu.RLock()
		serverName, ok := e.toolToServer[call.Function.Name]
		client := e.clients[serverName]
		e.mu.RUnlock()

		if !ok {
			results = append(results, tools.Result{
				CallID:  call.ID,
				Name:    call.Function.Name,
				Output:  fmt.Sprintf("no MCP server provides tool %q", call.Function.Name),
				IsError: true,
			})
			continue
		}

		results = append(results, client.CallTool(ctx, call))
	}
	return results, nil
}

// DiscoveredTools returns all tools discovered from the connected
// servers, for merging into a request's tool definitions.
func (e *Executor) DiscoveredTools(ctx context.Context) []api.ToolDefinition {
	e.ensureDiscovered(ctx)

	e.mu.RLock()
	defer e.mu.RUnlock()

	var all []api.ToolDefinition
	for _, client := range e.clients {
		client.mu.Lock()
		all = append(all, client.cachedTools...)
		client.mu.Unlock()
	}
	return all
}

// Close closes all MCP client connections.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for name, client := range e.clients {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", name, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (e *Executor) ensureDiscovered(ctx context.Context) {
	e.mu.RLock()
	if e.discovered {
		e.mu.RUnlock()
		return
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.discovered {
		return
	}

	for name, client := range e.clients {
		toolDefs, err := client.DiscoverTools(ctx)
		if err != nil {
			slog.Error("failed to discover tools from MCP server",
				"server", name,
				"error", err,
			)
			continue
		}

		for _, td := range toolDefs {
			if _, exists := e.toolToServer[td.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first provider",
					"tool", td.Name,
					"server", name,
				)
				continue
			}
			e.toolToServer[td.Name] = name
		}

		slog.Info("discovered MCP tools",
			"server", name,
			"count", len(toolDefs),
		)
	}

	e.discovered = true
}
