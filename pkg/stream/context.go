package stream

import (
	"strings"

	"github.com/unichat-ai/unichat/pkg/api"
)

// ToolEntry accumulates one in-progress tool call. Entries are keyed by
// the backend-assigned id or index and transition open -> closed exactly
// once, on an explicit stop event or at end of stream.
type ToolEntry struct {
	ID   string
	Name string

	args strings.Builder
}

// AppendArgs grows the argument buffer with one delta.
func (e *ToolEntry) AppendArgs(delta string) {
	e.args.WriteString(delta)
}

// Args returns the accumulated argument text.
func (e *ToolEntry) Args() string {
	return e.args.String()
}

// Context is the mutable accumulator shared by every stage of one
// completion's pipeline. Pipelines are single-threaded, so no locking is
// needed; the context is discarded when the pipeline finishes.
type Context struct {
	CompletionID string

	Content   string
	Thinking  string
	Signature string

	Citations    []api.Citation
	Usage        *api.Usage
	FinishReason string
	LogID        string

	// ToolCalls holds the finalized calls, in the order their entries
	// were opened.
	ToolCalls []api.ToolCall

	entries map[string]*ToolEntry
	order   []string
	closed  map[string]bool

	// Extra is an open extension map for stage-private state.
	Extra map[string]any
}

// NewContext creates the accumulator for one completion.
func NewContext(completionID string) *Context {
	return &Context{
		CompletionID: completionID,
		entries:      make(map[string]*ToolEntry),
		closed:       make(map[string]bool),
		Extra:        make(map[string]any),
	}
}

// AppendContent grows the accumulated visible text.
func (c *Context) AppendContent(s string) {
	c.Content += s
}

// AppendThinking grows the accumulated reasoning text.
func (c *Context) AppendThinking(s string) {
	c.Thinking += s
}

// Tool returns the entry under key, if one is open or was opened.
func (c *Context) Tool(key string) (*ToolEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// OpenTool returns the entry under key, creating it if needed. A
// non-empty id or name fills the entry's missing fields, so the dialect
// that streams the id on a later delta still converges. The second
// return reports whether the entry was created by this call.
func (c *Context) OpenTool(key, id, name string) (*ToolEntry, bool) {
	if e, ok := c.entries[key]; ok {
		if e.ID == "" {
			e.ID = id
		}
		if e.Name == "" {
			e.Name = name
		}
		return e, false
	}
	e := &ToolEntry{ID: id, Name: name}
	c.entries[key] = e
	c.order = append(c.order, key)
	return e, true
}

// CloseTool finalizes the entry under key with the given argument
// string, appending the finished call to ToolCalls. Closing an unknown
// or already-closed key is a no-op.
func (c *Context) CloseTool(key, arguments string) (api.ToolCall, bool) {
	e, ok := c.entries[key]
	if !ok || c.closed[key] {
		return api.ToolCall{}, false
	}
	c.closed[key] = true

	id := e.ID
	if id == "" {
		id = api.NewToolCallID()
	}
	call := api.ToolCall{
		ID:   id,
		Type: "function",
		Function: api.FunctionCall{
			Name:      e.Name,
			Arguments: arguments,
		},
	}
	c.ToolCalls = append(c.ToolCalls, call)
	return call, true
}

// CloseOpenTools finalizes every still-open entry in open order, using
// the raw accumulated arguments (empty buffers become "{}"). It returns
// the calls closed by this invocation.
func (c *Context) CloseOpenTools() []api.ToolCall {
	var closed []api.ToolCall
	for _, key := range c.order {
		if c.closed[key] {
			continue
		}
		args := c.entries[key].Args()
		if args == "" {
			args = "{}"
		}
		if call, ok := c.CloseTool(key, args); ok {
			closed = append(closed, call)
		}
	}
	return closed
}

// OpenToolCount reports how many entries are still open.
func (c *Context) OpenToolCount() int {
	n := 0
	for _, key := range c.order {
		if !c.closed[key] {
			n++
		}
	}
	return n
}
