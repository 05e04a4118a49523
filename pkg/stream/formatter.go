package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/debug"
)

// Formatter reassembles a backend SSE stream into canonical events. It
// supports the event-named framing and the type-tagged-JSON framing
// simultaneously: lines with an event-name marker set the current event
// type, and payloads are also inspected for an internal "type" field.
//
// Unrecognized event types and payload shapes are forwarded verbatim;
// the formatter is additive over known shapes, never destructive of
// unknown ones. That rule also lets canonical frames emitted by earlier
// stages pass through untouched.
type Formatter struct {
	logger *slog.Logger
	buf    *frameBuffer

	currentEvent string
	done         bool

	// blockKeys maps a block index from the event-named dialect to the
	// tool entry key it opened.
	blockKeys map[int]string
}

var _ Stage = (*Formatter)(nil)

// NewFormatter creates the reassembly stage. onEvict, if non-nil, is
// invoked with the byte count each time the frame buffer overflows.
func NewFormatter(logger *slog.Logger, onEvict func(dropped int)) *Formatter {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Formatter{
		logger:    logger,
		blockKeys: make(map[int]string),
	}
	f.buf = newFrameBuffer(logger, onEvict)
	return f
}

// Name implements Stage.
func (f *Formatter) Name() string { return "formatter" }

// Transform implements Stage. Input after the end-of-stream sentinel is
// discarded.
func (f *Formatter) Transform(ctx context.Context, sc *Context, chunk []byte) ([]byte, error) {
	if f.done {
		return nil, nil
	}

	f.buf.Append(chunk)

	var out []byte
	for _, line := range f.buf.Lines() {
		out = append(out, f.processLine(sc, line)...)
		if f.done {
			break
		}
	}
	return out, nil
}

// Flush implements Stage. Without a sentinel (early upstream close) it
// commits the accumulated partial state so downstream stages see a
// consistent result, and emits a closing content-block marker.
func (f *Formatter) Flush(ctx context.Context, sc *Context) ([]byte, error) {
	if f.done {
		return nil, nil
	}
	f.done = true

	sc.CloseOpenTools()
	f.deriveFinishReason(sc)
	return api.EncodeFrame(api.Event{Type: api.EventContentBlockStop}), nil
}

func (f *Formatter) processLine(sc *Context, line []byte) []byte {
	switch {
	case len(line) == 0:
		// Event names persist across frame boundaries: some backends
		// send the event marker once for a run of data lines.
		return nil

	case bytes.HasPrefix(line, []byte("event:")):
		f.currentEvent = string(bytes.TrimSpace(line[len("event:"):]))
		return nil

	case bytes.HasPrefix(line, []byte("data:")):
		payload := bytes.TrimSpace(line[len("data:"):])
		debug.Raw("stream", string(line))
		if bytes.Equal(payload, []byte("[DONE]")) {
			return f.finalize(sc)
		}
		return f.processPayload(sc, payload)

	default:
		// Comment and keep-alive lines.
		return nil
	}
}

func (f *Formatter) processPayload(sc *Context, payload []byte) []byte {
	if !json.Valid(payload) {
		f.logger.Debug("discarding non-JSON data line", "completion_id", sc.CompletionID)
		return nil
	}

	eventType := f.currentEvent
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &tag); err == nil && tag.Type != "" {
		eventType = tag.Type
	}

	switch eventType {
	case "message_start", "content_block_start", "content_block_delta",
		"content_block_stop", "message_delta", "ping":
		return f.processNamed(sc, eventType, payload)

	case "message_stop":
		return f.finalize(sc)

	case "":
		return f.processChunk(sc, payload)

	default:
		// Unknown event type: forward verbatim.
		return api.EncodeRawFrame(payload)
	}
}

// namedFrame covers the payload shapes of the event-named dialect.
type namedFrame struct {
	Index   int `json:"index"`
	Message *struct {
		Usage *namedUsage `json:"usage"`
	} `json:"message"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta *struct {
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	Usage *namedUsage `json:"usage"`
}

type namedUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (f *Formatter) processNamed(sc *Context, eventType string, payload []byte) []byte {
	var frame namedFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		f.logger.Debug("skipping malformed frame", "completion_id", sc.CompletionID, "event", eventType, "error", err)
		return nil
	}

	switch eventType {
	case "ping":
		return nil

	case "message_start":
		if frame.Message != nil && frame.Message.Usage != nil {
			f.mergeUsage(sc, frame.Message.Usage)
		}
		return nil

	case "content_block_start":
		if frame.ContentBlock != nil && frame.ContentBlock.Type == "tool_use" {
			key := frame.ContentBlock.ID
			if key == "" {
				key = fmt.Sprintf("idx:%d", frame.Index)
			}
			entry, _ := sc.OpenTool(key, frame.ContentBlock.ID, frame.ContentBlock.Name)
			f.blockKeys[frame.Index] = key
			return api.EncodeFrame(api.Event{
				Type:       api.EventToolUseStart,
				ToolCallID: entry.ID,
				ToolName:   entry.Name,
			})
		}
		return nil

	case "content_block_delta":
		if frame.Delta == nil {
			return nil
		}
		var out []byte
		if frame.Delta.Text != "" {
			sc.AppendContent(frame.Delta.Text)
			out = append(out, api.EncodeFrame(api.Event{
				Type:    api.EventContentBlockDelta,
				Content: frame.Delta.Text,
			})...)
		}
		if frame.Delta.Thinking != "" {
			sc.AppendThinking(frame.Delta.Thinking)
			out = append(out, api.EncodeFrame(api.Event{
				Type:     api.EventThinkingDelta,
				Thinking: frame.Delta.Thinking,
			})...)
		}
		if frame.Delta.Signature != "" {
			// Terminal blob: captured, re-emitted once at finalize.
			sc.Signature = frame.Delta.Signature
		}
		if frame.Delta.PartialJSON != "" {
			out = append(out, f.appendToolArgs(sc, frame.Index, frame.Delta.PartialJSON)...)
		}
		return out

	case "content_block_stop":
		if key, ok := f.blockKeys[frame.Index]; ok {
			delete(f.blockKeys, frame.Index)
			return f.closeTool(sc, key)
		}
		return api.EncodeFrame(api.Event{Type: api.EventContentBlockStop})

	case "message_delta":
		if frame.Usage != nil {
			f.mergeUsage(sc, frame.Usage)
		}
		return nil
	}
	return nil
}

func (f *Formatter) appendToolArgs(sc *Context, index int, delta string) []byte {
	key, ok := f.blockKeys[index]
	if !ok {
		// Delta for a block whose start was never seen.
		key = fmt.Sprintf("idx:%d", index)
		f.blockKeys[index] = key
		sc.OpenTool(key, "", "")
	}
	entry, _ := sc.Tool(key)
	entry.AppendArgs(delta)
	return api.EncodeFrame(api.Event{
		Type:       api.EventToolUseDelta,
		ToolCallID: entry.ID,
		Arguments:  delta,
	})
}

// closeTool finalizes an id-keyed entry with a terminal JSON parse of
// the accumulated buffer. Parse failure degrades to an empty object —
// logged, non-fatal.
func (f *Formatter) closeTool(sc *Context, key string) []byte {
	entry, ok := sc.Tool(key)
	if !ok {
		return nil
	}
	args := entry.Args()
	if args == "" || !json.Valid([]byte(args)) {
		if args != "" {
			f.logger.Warn("tool arguments failed to parse, degrading to empty object",
				"completion_id", sc.CompletionID, "tool", entry.Name)
		}
		args = "{}"
	}
	call, ok := sc.CloseTool(key, args)
	if !ok {
		return nil
	}
	return api.EncodeFrame(api.Event{
		Type:       api.EventToolUseStop,
		ToolCallID: call.ID,
		ToolName:   call.Function.Name,
	})
}

// chunkFrame covers the choice-delta dialect, which tags payloads with
// no event name or type field.
type chunkFrame struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Citations []string `json:"citations"`
}

func (f *Formatter) processChunk(sc *Context, payload []byte) []byte {
	var frame chunkFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		f.logger.Debug("skipping malformed chunk", "completion_id", sc.CompletionID, "error", err)
		return nil
	}
	if len(frame.Choices) == 0 && frame.Usage == nil && len(frame.Citations) == 0 {
		// Not a shape this dialect produces: forward verbatim.
		return api.EncodeRawFrame(payload)
	}

	var out []byte
	for _, choice := range frame.Choices {
		if choice.Delta.Content != "" {
			sc.AppendContent(choice.Delta.Content)
			out = append(out, api.EncodeFrame(api.Event{
				Type:    api.EventContentBlockDelta,
				Content: choice.Delta.Content,
			})...)
		}
		if choice.Delta.ReasoningContent != "" {
			sc.AppendThinking(choice.Delta.ReasoningContent)
			out = append(out, api.EncodeFrame(api.Event{
				Type:     api.EventThinkingDelta,
				Thinking: choice.Delta.ReasoningContent,
			})...)
		}
		for _, tc := range choice.Delta.ToolCalls {
			key := fmt.Sprintf("idx:%d", tc.Index)
			entry, created := sc.OpenTool(key, tc.ID, tc.Function.Name)
			if created {
				out = append(out, api.EncodeFrame(api.Event{
					Type:       api.EventToolUseStart,
					ToolCallID: entry.ID,
					ToolName:   entry.Name,
				})...)
			}
			if tc.Function.Arguments != "" {
				entry.AppendArgs(tc.Function.Arguments)
				out = append(out, api.EncodeFrame(api.Event{
					Type:       api.EventToolUseDelta,
					ToolCallID: entry.ID,
					Arguments:  tc.Function.Arguments,
				})...)
			}
		}
	}

	if frame.Usage != nil {
		sc.Usage = &api.Usage{
			InputTokens:  frame.Usage.PromptTokens,
			OutputTokens: frame.Usage.CompletionTokens,
			TotalTokens:  frame.Usage.TotalTokens,
		}
	}
	if len(frame.Citations) > 0 {
		citations := make([]api.Citation, 0, len(frame.Citations))
		for _, url := range frame.Citations {
			citations = append(citations, api.Citation{URL: url})
		}
		sc.Citations = citations
	}
	return out
}

// finalize runs at the end-of-stream sentinel: remaining open entries
// are closed, the finish reason derived, and one synthetic completion
// event summarizes the accumulated state. Further input is discarded.
func (f *Formatter) finalize(sc *Context) []byte {
	if f.done {
		return nil
	}
	f.done = true

	var out []byte
	for _, call := range sc.CloseOpenTools() {
		out = append(out, api.EncodeFrame(api.Event{
			Type:       api.EventToolUseStop,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
		})...)
	}

	if sc.Signature != "" {
		out = append(out, api.EncodeFrame(api.Event{
			Type:      api.EventSignatureDelta,
			Signature: sc.Signature,
		})...)
	}

	f.deriveFinishReason(sc)
	out = append(out, api.EncodeFrame(api.Event{
		Type:         api.EventMessageDelta,
		Content:      sc.Content,
		Thinking:     sc.Thinking,
		Citations:    sc.Citations,
		Usage:        sc.Usage,
		FinishReason: sc.FinishReason,
	})...)
	return out
}

func (f *Formatter) deriveFinishReason(sc *Context) {
	if len(sc.ToolCalls) > 0 {
		sc.FinishReason = api.FinishReasonToolCalls
	} else {
		sc.FinishReason = api.FinishReasonStop
	}
}

func (f *Formatter) mergeUsage(sc *Context, u *namedUsage) {
	if sc.Usage == nil {
		sc.Usage = &api.Usage{}
	}
	if u.InputTokens > 0 {
		sc.Usage.InputTokens = u.InputTokens
	}
	if u.OutputTokens > 0 {
		sc.Usage.OutputTokens = u.OutputTokens
	}
	sc.Usage.TotalTokens = sc.Usage.InputTokens + sc.Usage.OutputTokens
}
