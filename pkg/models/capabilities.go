// Package models holds per-model capability metadata and the read-only
// registry used to look it up. Populating the registry is the embedder's
// concern; the gateway core only reads from it.
package models

import (
	"github.com/unichat-ai/unichat/pkg/api"
)

// ModelType classifies what a model produces.
type ModelType string

const (
	ModelTypeText   ModelType = "text"
	ModelTypeImage  ModelType = "image"
	ModelTypeSpeech ModelType = "speech"
)

// Capabilities declares what a single model supports. Read-only; looked
// up by model id.
type Capabilities struct {
	// Type distinguishes text-completion models from the image/speech
	// models that use the prompt-style request contract.
	Type ModelType

	// Modalities the model accepts as input.
	Vision bool
	Audio  bool

	// MaxTokens is the model's output token ceiling (0 = unknown).
	MaxTokens int

	// Feature support flags.
	FunctionCalling  bool
	StructuredOutput bool
	SearchGrounding  bool
	CodeExecution    bool
	Reasoning        bool
}

// ValidateRequest checks whether the given request is compatible with the
// model's declared capabilities. Returns an APIError identifying the
// specific unsupported feature, or nil if the request is compatible.
func ValidateRequest(caps Capabilities, req *api.ChatRequest) *api.APIError {
	if len(req.Tools) > 0 && !caps.FunctionCalling {
		return api.NewInvalidRequestError("tools",
			"the selected model does not support tool calling")
	}

	if req.ResponseFormat.Structured() && !caps.StructuredOutput {
		return api.NewInvalidRequestError("response_format",
			"the selected model does not support structured output")
	}

	if req.ShouldThink && !caps.Reasoning {
		return api.NewInvalidRequestError("should_think",
			"the selected model does not support extended reasoning")
	}

	for _, msg := range req.Messages {
		for _, seg := range msg.Segments {
			switch seg.Type {
			case api.SegmentImage:
				if !caps.Vision && caps.Type == ModelTypeText {
					return api.NewInvalidRequestError("messages",
						"the selected model does not support image inputs")
				}
			case api.SegmentAudio:
				if !caps.Audio && caps.Type == ModelTypeText {
					return api.NewInvalidRequestError("messages",
						"the selected model does not support audio inputs")
				}
			}
		}
	}

	return nil
}
