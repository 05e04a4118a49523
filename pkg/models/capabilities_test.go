package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unichat-ai/unichat/pkg/api"
)

func TestValidateRequest(t *testing.T) {
	textOnly := Capabilities{Type: ModelTypeText, MaxTokens: 4096}
	full := Capabilities{
		Type:             ModelTypeText,
		Vision:           true,
		Audio:            true,
		FunctionCalling:  true,
		StructuredOutput: true,
		Reasoning:        true,
		MaxTokens:        8192,
	}

	tests := []struct {
		name      string
		caps      Capabilities
		req       api.ChatRequest
		wantParam string
	}{
		{
			name: "plain text request always passes",
			caps: textOnly,
			req:  api.ChatRequest{Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}}},
		},
		{
			name:      "tools rejected without function calling",
			caps:      textOnly,
			req:       api.ChatRequest{Tools: []api.ToolDefinition{{Name: "get_weather"}}},
			wantParam: "tools",
		},
		{
			name:      "structured output rejected without support",
			caps:      textOnly,
			req:       api.ChatRequest{ResponseFormat: &api.ResponseFormat{Type: "json_object"}},
			wantParam: "response_format",
		},
		{
			name:      "reasoning rejected without support",
			caps:      textOnly,
			req:       api.ChatRequest{ShouldThink: true},
			wantParam: "should_think",
		},
		{
			name: "image input rejected on text-only model",
			caps: textOnly,
			req: api.ChatRequest{Messages: []api.Message{{
				Role:     api.RoleUser,
				Segments: []api.Segment{{Type: api.SegmentImage, URL: "https://example.com/a.png"}},
			}}},
			wantParam: "messages",
		},
		{
			name: "everything accepted on full model",
			caps: full,
			req: api.ChatRequest{
				ShouldThink: true,
				Tools:       []api.ToolDefinition{{Name: "get_weather"}},
				Messages: []api.Message{{
					Role:     api.RoleUser,
					Segments: []api.Segment{{Type: api.SegmentImage, URL: "https://example.com/a.png"}},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.caps, &tt.req)
			if tt.wantParam == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantParam, err.Param)
			assert.Equal(t, api.ErrorTypeInvalidRequest, err.Type)
		})
	}
}

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry(map[string]Capabilities{
		"gpt-4o": {Type: ModelTypeText, FunctionCalling: true, MaxTokens: 16384},
	})

	caps, ok := reg.Lookup("gpt-4o")
	require.True(t, ok)
	assert.True(t, caps.FunctionCalling)

	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)

	reg.Register("flux-schnell", Capabilities{Type: ModelTypeImage})
	caps, ok = reg.Lookup("flux-schnell")
	require.True(t, ok)
	assert.Equal(t, ModelTypeImage, caps.Type)
}
