package backend

import (
	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/models"
)

// googleNormalizer emits generateContent request bodies. This is the one
// dialect outside the shared token-limit policy: the ceiling lives in
// generationConfig.maxOutputTokens and defaults flat to 4096 with no
// capability min.
type googleNormalizer struct{}

var _ Normalizer = googleNormalizer{}

func (googleNormalizer) ID() ID { return Google }

func (googleNormalizer) Normalize(req *api.ChatRequest, caps models.Capabilities, opts Options) (map[string]any, error) {
	body := map[string]any{}

	var systemParts []map[string]any
	contents := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == api.RoleSystem {
			systemParts = append(systemParts, map[string]any{"text": m.Text()})
			continue
		}
		contents = append(contents, map[string]any{
			"role":  googleRole(m.Role),
			"parts": googleParts(m),
		})
	}
	body["contents"] = contents
	if len(systemParts) > 0 {
		body["systemInstruction"] = map[string]any{"parts": systemParts}
	}

	maxOutput := defaultMaxTokens
	if req.MaxTokens != nil {
		maxOutput = *req.MaxTokens
	}
	generation := map[string]any{
		"maxOutputTokens": maxOutput,
	}
	if req.Temperature != nil {
		generation["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		generation["topP"] = *req.TopP
	}
	if req.TopK != nil {
		generation["topK"] = *req.TopK
	}
	if len(req.Stop) > 0 {
		generation["stopSequences"] = req.Stop
	}
	if req.Seed != nil {
		generation["seed"] = *req.Seed
	}
	if req.ResponseFormat.Structured() {
		generation["responseMimeType"] = "application/json"
		if len(req.ResponseFormat.Schema) > 0 {
			generation["responseSchema"] = req.ResponseFormat.Schema
		}
	}
	body["generationConfig"] = generation

	if tools := requestTools(req, caps, opts); len(tools) > 0 {
		declarations := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			declarations = append(declarations, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
		}
		body["tools"] = []map[string]any{{"functionDeclarations": declarations}}
	}

	return body, nil
}

func googleRole(role api.MessageRole) string {
	if role == api.RoleAssistant {
		return "model"
	}
	return "user"
}

func googleParts(m api.Message) []map[string]any {
	if len(m.Segments) == 0 {
		return []map[string]any{{"text": m.Content}}
	}
	parts := make([]map[string]any, 0, len(m.Segments))
	for _, seg := range m.Segments {
		switch seg.Type {
		case api.SegmentText:
			parts = append(parts, map[string]any{"text": seg.Text})
		case api.SegmentImage, api.SegmentAudio:
			if seg.Data != "" {
				parts = append(parts, map[string]any{
					"inlineData": map[string]any{
						"mimeType": seg.MediaType,
						"data":     seg.Data,
					},
				})
			} else if seg.URL != "" {
				parts = append(parts, map[string]any{
					"fileData": map[string]any{
						"mimeType": seg.MediaType,
						"fileUri":  seg.URL,
					},
				})
			}
		}
	}
	return parts
}
