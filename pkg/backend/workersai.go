package backend

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/models"
)

// workersaiNormalizer emits Workers AI request bodies. Text models take a
// chat-shaped body with flat tool declarations; image and speech models
// use the prompt-style contract exposed through ImageRequest.
type workersaiNormalizer struct{}

var (
	_ Normalizer     = workersaiNormalizer{}
	_ ImageRequester = workersaiNormalizer{}
)

func (workersaiNormalizer) ID() ID { return WorkersAI }

func (workersaiNormalizer) Normalize(req *api.ChatRequest, caps models.Capabilities, opts Options) (map[string]any, error) {
	body := map[string]any{
		"messages":   workersaiMessages(req.Messages),
		"max_tokens": cappedMaxTokens(req, caps),
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
	if req.Seed != nil {
		body["seed"] = *req.Seed
	}
	if req.FrequencyPenalty != nil {
		body["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		body["presence_penalty"] = *req.PresencePenalty
	}

	if req.ResponseFormat.Structured() {
		rf := map[string]any{"type": req.ResponseFormat.Type}
		if len(req.ResponseFormat.Schema) > 0 {
			rf["json_schema"] = req.ResponseFormat.Schema
		}
		body["response_format"] = rf
	}

	// Workers AI declares tools flat, without the function wrapper.
	if tools := requestTools(req, caps, opts); len(tools) > 0 {
		wire := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			wire = append(wire, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
		}
		body["tools"] = wire
	}

	if req.Stream {
		body["stream"] = true
	}

	return body, nil
}

// ImageRequest implements the prompt-style contract for image and speech
// model types. The request must follow the 1-2-message image-prompt
// convention: at most two messages, the last carrying a text segment that
// becomes the prompt. Any image segment is resolved to raw bytes, inline
// data first, otherwise through the injected object store. A shape that
// disagrees with the convention yields (nil, nil).
func (workersaiNormalizer) ImageRequest(ctx context.Context, req *api.ChatRequest, caps models.Capabilities, opts Options) (*ImagePrompt, error) {
	if caps.Type != models.ModelTypeImage && caps.Type != models.ModelTypeSpeech {
		return nil, nil
	}
	if len(req.Messages) == 0 || len(req.Messages) > 2 {
		return nil, nil
	}

	prompt := req.Messages[len(req.Messages)-1].Text()
	if prompt == "" {
		return nil, nil
	}

	out := &ImagePrompt{Prompt: prompt}
	for _, m := range req.Messages {
		for _, seg := range m.Segments {
			if seg.Type != api.SegmentImage {
				continue
			}
			image, err := resolveImage(ctx, seg, opts)
			if err != nil {
				return nil, err
			}
			out.Image = image
			return out, nil
		}
	}
	return out, nil
}

// resolveImage turns an image segment into raw bytes: inline base64 data
// is decoded; a URL or storage key is fetched through the object store.
func resolveImage(ctx context.Context, seg api.Segment, opts Options) ([]byte, error) {
	if seg.Data != "" {
		raw, err := base64.StdEncoding.DecodeString(seg.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding inline image data: %w", err)
		}
		return raw, nil
	}
	if seg.URL == "" {
		return nil, nil
	}
	if opts.Objects == nil {
		return nil, fmt.Errorf("image reference %q requires an object store", seg.URL)
	}
	raw, err := opts.Objects.Get(ctx, seg.URL)
	if err != nil {
		return nil, fmt.Errorf("resolving image %q: %w", seg.URL, err)
	}
	return raw, nil
}

func workersaiMessages(msgs []api.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"role":    string(m.Role),
			"content": m.Text(),
		})
	}
	return out
}
