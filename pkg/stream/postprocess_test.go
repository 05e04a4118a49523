package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/memory"
	"github.com/unichat-ai/unichat/pkg/moderation"
	"github.com/unichat-ai/unichat/pkg/storage"
	memstore "github.com/unichat-ai/unichat/pkg/storage/memory"
	"github.com/unichat-ai/unichat/pkg/tools"
)

type failingValidator struct{}

func (failingValidator) ValidateOutput(ctx context.Context, text, userID, completionID string) (api.ModerationResult, error) {
	return api.ModerationResult{}, errors.New("moderation service down")
}

type recordingExecutor struct {
	payload tools.Payload
	results []tools.Result
	err     error
}

func (e *recordingExecutor) Invoke(ctx context.Context, completionID string, p tools.Payload, store storage.ConversationStore, rc tools.RunContext) ([]tools.Result, error) {
	e.payload = p
	return e.results, e.err
}

func flushPostProcessing(t *testing.T, cfg PostProcessingConfig, sc *Context) []api.Event {
	t.Helper()
	s := NewPostProcessing(nil, cfg)
	out, err := s.Flush(context.Background(), sc)
	require.NoError(t, err)
	return decodeFrames(t, out)
}

func eventOfType(t *testing.T, events []api.Event, typ api.EventType) api.Event {
	t.Helper()
	for _, ev := range events {
		if ev.Type == typ {
			return ev
		}
	}
	t.Fatalf("no %s event in %v", typ, events)
	return api.Event{}
}

func TestPostProcessingPersistsAndEmitsStop(t *testing.T) {
	store := memstore.New(0)
	sc := NewContext("chat_pp")
	sc.Content = "final answer"
	sc.Thinking = "deliberation"

	events := flushPostProcessing(t, PostProcessingConfig{
		ConversationID: "conv-1",
		UserID:         "user-1",
		Mode:           "chat",
		Store:          store,
		Validator:      moderation.NewKeywordValidator(nil),
	}, sc)

	assert.Equal(t, api.StatePostProcessing, events[0].State)
	stop := eventOfType(t, events, api.EventMessageStop)
	require.NotNil(t, stop.Moderation)
	assert.True(t, stop.Moderation.IsValid)

	history, err := store.GetHistory(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, api.RoleAssistant, history[0].Role)
	assert.Equal(t, "final answer", history[0].Content)
	assert.Equal(t, "deliberation", history[0].Thinking)
	assert.Equal(t, "chat", history[0].Mode)
	assert.False(t, history[0].Timestamp.IsZero())
}

func TestPostProcessingModerationFailureIsFailClosed(t *testing.T) {
	store := memstore.New(0)
	sc := NewContext("chat_modfail")
	sc.Content = "suspect output"

	events := flushPostProcessing(t, PostProcessingConfig{
		ConversationID: "conv-2",
		UserID:         "user-1",
		Store:          store,
		Validator:      failingValidator{},
	}, sc)

	// The failure must not stop the sequence: the message is persisted
	// and message_stop still emitted, with a recorded "not passed"
	// verdict rather than none.
	stop := eventOfType(t, events, api.EventMessageStop)
	require.NotNil(t, stop.Moderation)
	assert.False(t, stop.Moderation.IsValid)
	assert.Contains(t, stop.Moderation.Violations, "moderation_error")

	history, err := store.GetHistory(context.Background(), "conv-2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Moderation)
	assert.False(t, history[0].Moderation.IsValid)

	// A fail-closed verdict is not a processing failure.
	for _, ev := range events {
		assert.NotEqual(t, api.EventError, ev.Type)
	}
}

func TestPostProcessingBlockedOutput(t *testing.T) {
	sc := NewContext("chat_blocked")
	sc.Content = "this mentions forbiddenword here"

	events := flushPostProcessing(t, PostProcessingConfig{
		Validator: moderation.NewKeywordValidator([]string{"forbiddenword"}),
	}, sc)

	stop := eventOfType(t, events, api.EventMessageStop)
	require.NotNil(t, stop.Moderation)
	assert.False(t, stop.Moderation.IsValid)
	assert.Equal(t, "forbiddenword", stop.Moderation.BlockedText)
}

func TestPostProcessingInvokesTools(t *testing.T) {
	executor := &recordingExecutor{
		results: []tools.Result{
			{CallID: "call_1", Name: "get_weather", Output: "sunny"},
			{CallID: "call_2", Name: "broken_tool", Output: "boom", IsError: true},
		},
	}
	sc := NewContext("chat_tools")
	sc.Content = "checking"
	sc.ToolCalls = []api.ToolCall{
		{ID: "call_1", Type: "function", Function: api.FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`}},
		{ID: "call_2", Type: "function", Function: api.FunctionCall{Name: "broken_tool", Arguments: `{}`}},
	}

	events := flushPostProcessing(t, PostProcessingConfig{
		UserID:   "user-1",
		Executor: executor,
	}, sc)

	assert.Equal(t, sc.ToolCalls, executor.payload.Calls)
	assert.Equal(t, "checking", executor.payload.Text)

	var types []api.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []api.EventType{
		api.EventState,
		api.EventMessageStop,
		api.EventToolUseStart, api.EventToolUseDelta, api.EventToolUseStop,
		api.EventToolUseStart, api.EventToolUseDelta, api.EventToolUseStop,
		api.EventToolResponseStart, api.EventToolResponse, api.EventToolResponseStop,
		api.EventToolResponseStart, api.EventToolError, api.EventToolResponseStop,
	}, types)
}

func TestPostProcessingExecutorFailureSurfacesOneError(t *testing.T) {
	executor := &recordingExecutor{err: errors.New("executor down")}
	sc := NewContext("chat_toolfail")
	sc.ToolCalls = []api.ToolCall{
		{ID: "call_1", Type: "function", Function: api.FunctionCall{Name: "x", Arguments: "{}"}},
	}

	events := flushPostProcessing(t, PostProcessingConfig{Executor: executor}, sc)

	var errCount int
	for _, ev := range events {
		if ev.Type == api.EventError {
			errCount++
		}
	}
	assert.Equal(t, 1, errCount)
	// The stop event still precedes the failure report.
	eventOfType(t, events, api.EventMessageStop)
}

func TestPostProcessingMemoryCapture(t *testing.T) {
	store := memstore.New(0)
	require.NoError(t, store.Append(context.Background(), "conv-mem", storage.StoredMessage{
		ID:      "msg_1",
		Role:    api.RoleUser,
		Content: "Please remember that my cat is named Miso.",
	}))

	sc := NewContext("chat_mem")
	sc.Content = "Noted!"

	flushPostProcessing(t, PostProcessingConfig{
		ConversationID: "conv-mem",
		UserID:         "user-1",
		Store:          store,
		Extractor:      memory.HeuristicExtractor{},
		Memory:         memory.Settings{Enabled: true},
	}, sc)

	require.Len(t, sc.ToolCalls, 1)
	assert.Equal(t, "store_memory", sc.ToolCalls[0].Function.Name)
	assert.Contains(t, sc.ToolCalls[0].Function.Arguments, "my cat is named Miso")
}

func TestPostProcessingRunsOnce(t *testing.T) {
	s := NewPostProcessing(nil, PostProcessingConfig{})
	sc := NewContext("chat_once")

	first, err := s.Flush(context.Background(), sc)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := s.Flush(context.Background(), sc)
	require.NoError(t, err)
	assert.Empty(t, second)
}
