// Package tools defines the tool-invocation collaborator the
// post-processing stage calls once a completion's tool-call list is
// finalized. Implementations route calls to in-process functions
// (registry) or remote MCP servers (mcp).
package tools

import (
	"context"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/storage"
)

// Payload is the completion state handed to the executor: the visible
// text and the finalized tool calls to run.
type Payload struct {
	Text  string
	Calls []api.ToolCall
}

// RunContext carries per-completion identity the tools may need.
type RunContext struct {
	UserID         string
	ConversationID string
	Platform       string
}

// Result is the outcome of one tool call. Output is the JSON-encoded
// tool response; IsError marks a tool-level failure that should be
// surfaced as a tool_error event rather than aborting post-processing.
type Result struct {
	CallID  string
	Name    string
	Output  string
	IsError bool
}

// Executor runs a completion's tool calls sequentially and returns one
// Result per call, in call order.
type Executor interface {
	Invoke(ctx context.Context, completionID string, p Payload, store storage.ConversationStore, rc RunContext) ([]Result, error)
}
