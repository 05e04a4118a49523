package api

import (
	"encoding/json"
)

// ---------------------------------------------------------------------------
// Canonical request
// ---------------------------------------------------------------------------

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// ReasoningEffort is the caller's hint for how much of the token budget
// extended reasoning may consume.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// ChatRequest is the backend-agnostic chat-completion call. It is built
// once per completion and treated as immutable: normalizers read it but
// never write to it.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Seed             *int     `json:"seed,omitempty"`

	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`

	ShouldThink     bool            `json:"should_think,omitempty"`
	ReasoningEffort ReasoningEffort `json:"reasoning_effort,omitempty"`

	Stream bool   `json:"stream,omitempty"`
	User   string `json:"user,omitempty"`
}

// Message is one entry in the canonical conversation. Content is either a
// plain string or a list of Segment values for mixed text/image/audio input.
type Message struct {
	Role     MessageRole `json:"role"`
	Content  string      `json:"content,omitempty"`
	Segments []Segment   `json:"segments,omitempty"`

	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

/// Text returns the textual content of the message: the plain Content
// string, or the first text segment when the message is segmented.
func (m Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	for _, seg := range m.Segments {
		if seg.Type == SegmentText {
			return seg.Text
		}
	}
	return ""
}

// SegmentType identifies the kind of a content segment.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentImage SegmentType = "image"
	SegmentAudio SegmentType = "audio"
)

// Segment is one part of a mixed-content message. Images carry either a
// URL/storage key or inline base64 data; audio carries inline data.
type Segment struct {
	Type      SegmentType `json:"type"`
	Text      string      `json:"text,omitempty"`
	URL       string      `json:"url,omitempty"`
	Data      string      `json:"data,omitempty"`
	MediaType string      `json:"media_type,omitempty"`
}

// ToolDefinition declares a function the model may call.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ResponseFormat constrains the shape of the model output.
// Type is "text", "json_object", or "json_schema".
type ResponseFormat struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Structured reports whether the response format forces structured output.
// Tool declarations and structured output are mutually exclusive in the
// canonical model.
func (f *ResponseFormat) Structured() bool {
	return f != nil && (f.Type == "json_object" || f.Type == "json_schema")
}

// ---------------------------------------------------------------------------
// Accumulated completion state
// ---------------------------------------------------------------------------

// Usage holds token accounting for one completion. Writes are
// last-write-wins: a later usage payload from the backend replaces an
// earlier one wholesale.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Citation is one source reference attached to a completion by
// search-grounded backends.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ToolCall is a finalized model-initiated function invocation. Arguments
// is always a JSON-encoded string, never a raw object.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FinishReason values reported on the terminal message_delta event.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// ModerationResult is the verdict recorded for a completion's visible
// output. A moderation collaborator failure is recorded as not passed,
// never silently dropped.
type ModerationResult struct {
	IsValid     bool     `json:"is_valid"`
	BlockedText string   `json:"blocked_text,omitempty"`
	Violations  []string `json:"violations,omitempty"`
}

// UsageLimits is the per-user quota snapshot emitted by the init stage.
type UsageLimits struct {
	Daily DailyLimit `json:"daily"`
}

// DailyLimit is one quota window.
type DailyLimit struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}
