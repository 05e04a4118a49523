package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/storage"
	"github.com/unichat-ai/unichat/pkg/tools"
)

func call(id, name, args string) api.ToolCall {
	return api.ToolCall{
		ID:   id,
		Type: "function",
		Function: api.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestInvokeRoutesToHandler(t *testing.T) {
	reg := New()
	reg.Register("echo", func(ctx context.Context, args json.RawMessage, store storage.ConversationStore, rc tools.RunContext) (string, error) {
		var payload struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal(args, &payload))
		return payload.Text, nil
	})

	results, err := reg.Invoke(context.Background(), "chat_1",
		tools.Payload{Calls: []api.ToolCall{call("c1", "echo", `{"text":"hi"}`)}},
		nil, tools.RunContext{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "hi", results[0].Output)
	assert.False(t, results[0].IsError)
}

func TestInvokeMissingHandler(t *testing.T) {
	results, err := New().Invoke(context.Background(), "chat_1",
		tools.Payload{Calls: []api.ToolCall{call("c1", "nope", `{}`)}},
		nil, tools.RunContext{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Output, "nope")
}

func TestInvokeHandlerErrorDoesNotFailBatch(t *testing.T) {
	reg := New()
	reg.Register("boom", func(ctx context.Context, args json.RawMessage, store storage.ConversationStore, rc tools.RunContext) (string, error) {
		return "", errors.New("kaput")
	})
	reg.Register("ok", func(ctx context.Context, args json.RawMessage, store storage.ConversationStore, rc tools.RunContext) (string, error) {
		return "fine", nil
	})

	results, err := reg.Invoke(context.Background(), "chat_1",
		tools.Payload{Calls: []api.ToolCall{
			call("c1", "boom", `{}`),
			call("c2", "ok", `{}`),
		}},
		nil, tools.RunContext{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "fine", results[1].Output)
}

func TestRegisterConflictKeepsFirst(t *testing.T) {
	reg := New()
	reg.Register("dup", func(ctx context.Context, args json.RawMessage, store storage.ConversationStore, rc tools.RunContext) (string, error) {
		return "first", nil
	})
	reg.Register("dup", func(ctx context.Context, args json.RawMessage, store storage.ConversationStore, rc tools.RunContext) (string, error) {
		return "second", nil
	})

	results, err := reg.Invoke(context.Background(), "chat_1",
		tools.Payload{Calls: []api.ToolCall{call("c1", "dup", `{}`)}},
		nil, tools.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, "first", results[0].Output)
}
