package backend

import (
	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/models"
)

// anthropicNormalizer emits Messages API request bodies. System messages
// are lifted out of the message list into the top-level system field, and
// extended reasoning maps to the thinking block with a derived token budget.
type anthropicNormalizer struct{}

var _ Normalizer = anthropicNormalizer{}

func (anthropicNormalizer) ID() ID { return Anthropic }

func (anthropicNormalizer) Normalize(req *api.ChatRequest, caps models.Capabilities, opts Options) (map[string]any, error) {
	maxTokens := cappedMaxTokens(req, caps)

	body := map[string]any{
		"model":      req.Model,
		"max_tokens": maxTokens,
	}

	var system string
	messages := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == api.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Text()
			continue
		}
		messages = append(messages, map[string]any{
			"role":    anthropicRole(m.Role),
			"content": anthropicContent(m),
		})
	}
	body["messages"] = messages
	if system != "" {
		body["system"] = system
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.TopK != nil {
		body["top_k"] = *req.TopK
	}
	if len(req.Stop) > 0 {
		body["stop_sequences"] = req.Stop
	}

	if tools := requestTools(req, caps, opts); len(tools) > 0 {
		wire := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			wire = append(wire, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.Parameters,
			})
		}
		body["tools"] = wire
	}

	if req.ShouldThink && caps.Reasoning {
		body["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": reasoningBudget(req, maxTokens),
		}
	}

	if req.Stream {
		body["stream"] = true
	}

	return body, nil
}

// anthropicRole maps canonical roles onto the two the Messages API accepts.
// Tool results ride as user-role content blocks.
func anthropicRole(role api.MessageRole) string {
	if role == api.RoleAssistant {
		return "assistant"
	}
	return "user"
}

// anthropicContent renders a message as Messages API content blocks, or a
// bare string for plain text.
func anthropicContent(m api.Message) any {
	if m.ToolCallID != "" {
		return []map[string]any{{
			"type":        "tool_result",
			"tool_use_id": m.ToolCallID,
			"content":     m.Text(),
		}}
	}
	if len(m.Segments) == 0 {
		return m.Content
	}
	blocks := make([]map[string]any, 0, len(m.Segments))
	for _, seg := range m.Segments {
		switch seg.Type {
		case api.SegmentText:
			blocks = append(blocks, map[string]any{"type": "text", "text": seg.Text})
		case api.SegmentImage:
			source := map[string]any{}
			if seg.URL != "" {
				source["type"] = "url"
				source["url"] = seg.URL
			} else {
				source["type"] = "base64"
				source["media_type"] = seg.MediaType
				source["data"] = seg.Data
			}
			blocks = append(blocks, map[string]any{"type": "image", "source": source})
		}
	}
	return blocks
}
