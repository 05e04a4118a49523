package backend

import (
	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/models"
)

// defaultMaxTokens applies when neither the request nor the capability
// descriptor declares a ceiling.
const defaultMaxTokens = 4096

// reasoningFloor is the thinking budget used when the request carries no
// max_tokens at all.
const reasoningFloor = 1024

// cappedMaxTokens applies the shared token-limit policy:
// min(requested, capability ceiling), with the capability ceiling
// defaulting to 4096 when the descriptor is silent.
func cappedMaxTokens(req *api.ChatRequest, caps models.Capabilities) int {
	ceiling := caps.MaxTokens
	if ceiling == 0 {
		ceiling = defaultMaxTokens
	}
	if req.MaxTokens == nil || *req.MaxTokens > ceiling {
		return ceiling
	}
	return *req.MaxTokens
}

// reasoningBudget maps the effort hint to a token budget:
// low -> 50%, medium/default -> 75%, high -> 90% of maxTokens, floored.
// When the request carries no max_tokens the budget is a flat 1024.
func reasoningBudget(req *api.ChatRequest, maxTokens int) int {
	if req.MaxTokens == nil {
		return reasoningFloor
	}
	var fraction float64
	switch req.ReasoningEffort {
	case api.EffortLow:
		fraction = 0.5
	case api.EffortHigh:
		fraction = 0.9
	default: // medium and unset
		fraction = 0.75
	}
	return int(float64(maxTokens) * fraction)
}

// toolsAllowed reports whether tool declarations may attach to the body:
// the model must support function calling, and the request must not carry
// a structured response-format constraint. The two are mutually exclusive
// in the canonical model.
func toolsAllowed(req *api.ChatRequest, caps models.Capabilities) bool {
	return caps.FunctionCalling && len(req.Tools) > 0 && !req.ResponseFormat.Structured()
}

// filterTools applies the caller's enabled-tool allow-list. A nil list
// permits every declared tool.
func filterTools(tools []api.ToolDefinition, enabled []string) []api.ToolDefinition {
	if enabled == nil {
		return tools
	}
	allowed := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		allowed[name] = true
	}
	var out []api.ToolDefinition
	for _, t := range tools {
		if allowed[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// requestTools returns the filtered tool list when attachment is allowed,
// or nil when it is not.
func requestTools(req *api.ChatRequest, caps models.Capabilities, opts Options) []api.ToolDefinition {
	if !toolsAllowed(req, caps) {
		return nil
	}
	return filterTools(req.Tools, opts.EnabledTools)
}
