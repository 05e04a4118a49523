package backend

import (
	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/models"
)

// openaiNormalizer emits Chat Completions request bodies. This dialect is
// also what most OpenAI-compatible inference servers accept.
type openaiNormalizer struct{}

var _ Normalizer = openaiNormalizer{}

func (openaiNormalizer) ID() ID { return OpenAI }

func (openaiNormalizer) Normalize(req *api.ChatRequest, caps models.Capabilities, opts Options) (map[string]any, error) {
	body := map[string]any{
		"model":    req.Model,
		"messages": openaiMessages(req.Messages),
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		body["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		body["presence_penalty"] = *req.PresencePenalty
	}
	if len(req.Stop) > 0 {
		body["stop"] = req.Stop
	}
	if req.Seed != nil {
		body["seed"] = *req.Seed
	}
	body["max_tokens"] = cappedMaxTokens(req, caps)

	if req.ResponseFormat.Structured() {
		rf := map[string]any{"type": req.ResponseFormat.Type}
		if len(req.ResponseFormat.Schema) > 0 {
			rf["json_schema"] = req.ResponseFormat.Schema
		}
		body["response_format"] = rf
	}

	if tools := requestTools(req, caps, opts); len(tools) > 0 {
		wire := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			wire = append(wire, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		body["tools"] = wire
	}

	if req.ShouldThink && caps.Reasoning {
		effort := req.ReasoningEffort
		if effort == "" {
			effort = api.EffortMedium
		}
		body["reasoning_effort"] = string(effort)
	}

	if req.Stream {
		body["stream"] = true
		body["stream_options"] = map[string]any{"include_usage": true}
	}

	return body, nil
}

// openaiMessages renders canonical messages in Chat Completions form.
// Segmented content becomes the multimodal content-part array.
func openaiMessages(msgs []api.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		wire := map[string]any{"role": string(m.Role)}
		if len(m.Segments) == 0 {
			wire["content"] = m.Content
		} else {
			parts := make([]map[string]any, 0, len(m.Segments))
			for _, seg := range m.Segments {
				switch seg.Type {
				case api.SegmentText:
					parts = append(parts, map[string]any{"type": "text", "text": seg.Text})
				case api.SegmentImage:
					url := seg.URL
					if url == "" && seg.Data != "" {
						url = "data:" + seg.MediaType + ";base64," + seg.Data
					}
					parts = append(parts, map[string]any{
						"type":      "image_url",
						"image_url": map[string]any{"url": url},
					})
				case api.SegmentAudio:
					parts = append(parts, map[string]any{
						"type": "input_audio",
						"input_audio": map[string]any{
							"data":   seg.Data,
							"format": seg.MediaType,
						},
					})
				}
			}
			wire["content"] = parts
		}
		if m.ToolCallID != "" {
			wire["tool_call_id"] = m.ToolCallID
		}
		if m.Name != "" {
			wire["name"] = m.Name
		}
		out = append(out, wire)
	}
	return out
}
