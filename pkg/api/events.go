package api

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the type of a canonical stream event.
type EventType string

// Lifecycle and delta events of the unified client-facing stream.
const (
	EventState       EventType = "state"
	EventUsageLimits EventType = "usage_limits"

	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventThinkingDelta     EventType = "thinking_delta"
	EventSignatureDelta    EventType = "signature_delta"

	EventToolUseStart EventType = "tool_use_start"
	EventToolUseDelta EventType = "tool_use_delta"
	EventToolUseStop  EventType = "tool_use_stop"

	EventToolResponseStart EventType = "tool_response_start"
	EventToolResponse      EventType = "tool_response"
	EventToolResponseStop  EventType = "tool_response_stop"
	EventToolError         EventType = "tool_error"

	EventMessageDelta EventType = "message_delta"
	EventMessageStop  EventType = "message_stop"
	EventError        EventType = "error"
)

// States carried by EventState events.
const (
	StateInit           = "init"
	StateThinking       = "thinking"
	StatePostProcessing = "post_processing"
	StateDone           = "done"
)

// Event is one normalized message in the unified client-facing stream.
// Only the fields relevant to the event's Type are populated.
type Event struct {
	Type  EventType `json:"type"`
	State string    `json:"state,omitempty"`

	// Incremental channels.
	Content   string `json:"content,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// Tool-call framing.
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Arguments  string          `json:"arguments,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	// Terminal summary fields (message_delta / message_stop).
	Citations    []Citation        `json:"citations,omitempty"`
	Usage        *Usage            `json:"usage,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Moderation   *ModerationResult `json:"moderation,omitempty"`

	Limits *UsageLimits `json:"limits,omitempty"`
	Error  *APIError    `json:"error,omitempty"`
	LogID  string       `json:"log_id,omitempty"`
}

// DoneFrame terminates every canonical stream, regardless of how the
// completion ended.
const DoneFrame = "data: [DONE]\n\n"

// EncodeFrame serializes an event in the canonical line framing:
//
//	data: {json}\n
//	\n
//
// Marshalling an Event cannot fail for any value constructed by this
// module; a failure is reported as an in-band error frame so the stream
// framing stays intact.
func EncodeFrame(ev Event) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		data = []byte(`{"type":"error","error":{"type":"server_error","message":"event serialization failed"}}`)
	}
	return fmt.Appendf(nil, "data: %s\n\n", data)
}

// EncodeRawFrame wraps an already-serialized JSON payload in the canonical
// line framing. Used to forward unrecognized backend payloads verbatim.
func EncodeRawFrame(payload []byte) []byte {
	return fmt.Appendf(nil, "data: %s\n\n", payload)
}
