package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/memory"
	"github.com/unichat-ai/unichat/pkg/moderation"
	"github.com/unichat-ai/unichat/pkg/storage"
	"github.com/unichat-ai/unichat/pkg/tokens"
	"github.com/unichat-ai/unichat/pkg/tools"
)

// PostProcessingConfig wires the collaborators of the end-of-stream
// side effects. Nil collaborators disable their step.
type PostProcessingConfig struct {
	ConversationID string
	UserID         string
	Mode           string

	Store     storage.ConversationStore
	Validator moderation.Validator
	Extractor memory.Extractor
	Memory    memory.Settings
	Executor  tools.Executor
	Estimator *tokens.Estimator

	// OnVerdict, if set, observes the final moderation result. Used for
	// instrumentation.
	OnVerdict func(api.ModerationResult)
}

// PostProcessingStage runs the side-effecting end-of-stream steps:
// memory capture, output moderation, persistence, terminal events, and
// tool invocation. It runs once at flush, guarded by an idempotency
// flag, and passes chunk data through untouched.
//
// Each step is independently fault-tolerant. Memory capture failure
// contributes nothing; moderation failure records the output as not
// passed; persistence and tool-invocation failures surface as a single
// in-band "processing failed" event. No step failure re-throws into the
// pipeline.
type PostProcessingStage struct {
	logger *slog.Logger
	cfg    PostProcessingConfig

	done bool
}

var _ Stage = (*PostProcessingStage)(nil)

// NewPostProcessing creates the stage.
func NewPostProcessing(logger *slog.Logger, cfg PostProcessingConfig) *PostProcessingStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostProcessingStage{logger: logger, cfg: cfg}
}

// Name implements Stage.
func (s *PostProcessingStage) Name() string { return "post_processing" }

// Transform implements Stage.
func (s *PostProcessingStage) Transform(ctx context.Context, sc *Context, chunk []byte) ([]byte, error) {
	return chunk, nil
}

// Flush implements Stage.
func (s *PostProcessingStage) Flush(ctx context.Context, sc *Context) ([]byte, error) {
	if s.done {
		return nil, nil
	}
	s.done = true

	log := s.logger.With("completion_id", sc.CompletionID)
	out := api.EncodeFrame(api.Event{Type: api.EventState, State: api.StatePostProcessing})

	// Entries still open after an early close are materialized here so
	// persistence and tool invocation see a consistent list.
	sc.CloseOpenTools()

	s.captureMemory(ctx, sc, log)
	s.fillUsage(sc)

	failed := false
	mod := s.moderate(ctx, sc, log)
	if s.cfg.OnVerdict != nil {
		s.cfg.OnVerdict(mod)
	}

	if err := s.persist(ctx, sc, mod); err != nil {
		log.Error("persisting assistant message failed", "error", err)
		failed = true
	}

	out = append(out, api.EncodeFrame(api.Event{
		Type:       api.EventMessageStop,
		Usage:      sc.Usage,
		Moderation: &mod,
		LogID:      sc.LogID,
	})...)

	if len(sc.ToolCalls) > 0 {
		frames, err := s.invokeTools(ctx, sc, log)
		out = append(out, frames...)
		if err != nil {
			failed = true
		}
	}

	if failed {
		out = append(out, api.EncodeFrame(api.Event{
			Type:  api.EventError,
			Error: api.NewServerError("post-processing failed"),
		})...)
	}
	return out, nil
}

// captureMemory extracts durable facts from the latest user turn and
// appends them to the tool-call list as synthetic function calls. Any
// failure is logged and contributes nothing.
func (s *PostProcessingStage) captureMemory(ctx context.Context, sc *Context, log *slog.Logger) {
	if s.cfg.Extractor == nil || !s.cfg.Memory.Enabled || s.cfg.Store == nil {
		return
	}

	history, err := s.cfg.Store.GetHistory(ctx, s.cfg.ConversationID)
	if err != nil {
		log.Warn("memory capture: history fetch failed", "error", err)
		return
	}

	var latest string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == api.RoleUser {
			latest = history[i].Content
			break
		}
	}
	if latest == "" {
		return
	}

	events, err := s.cfg.Extractor.Extract(ctx, latest, history, s.cfg.Store, sc.CompletionID, s.cfg.Memory)
	if err != nil {
		log.Warn("memory capture failed", "error", err)
		return
	}

	for _, ev := range events {
		args, err := json.Marshal(map[string]string{"text": ev.Text})
		if err != nil {
			continue
		}
		sc.ToolCalls = append(sc.ToolCalls, api.ToolCall{
			ID:   api.NewToolCallID(),
			Type: "function",
			Function: api.FunctionCall{
				Name:      ev.Type,
				Arguments: string(args),
			},
		})
	}
}

// fillUsage estimates output tokens locally when the backend never
// reported usage.
func (s *PostProcessingStage) fillUsage(sc *Context) {
	if sc.Usage != nil || s.cfg.Estimator == nil {
		return
	}
	n := s.cfg.Estimator.Count(sc.Content + sc.Thinking)
	sc.Usage = &api.Usage{OutputTokens: n, TotalTokens: n}
}

// moderate scores the accumulated visible text. A collaborator failure
// is fail-closed: the output is recorded as not passed, never silently
// passed.
func (s *PostProcessingStage) moderate(ctx context.Context, sc *Context, log *slog.Logger) api.ModerationResult {
	if s.cfg.Validator == nil {
		return api.ModerationResult{IsValid: true}
	}

	result, err := s.cfg.Validator.ValidateOutput(ctx, sc.Content, s.cfg.UserID, sc.CompletionID)
	if err != nil {
		log.Error("moderation failed, recording output as blocked", "error", err)
		return api.ModerationResult{
			IsValid:    false,
			Violations: []string{"moderation_error"},
		}
	}
	return result
}

func (s *PostProcessingStage) persist(ctx context.Context, sc *Context, mod api.ModerationResult) error {
	if s.cfg.Store == nil || s.cfg.ConversationID == "" {
		return nil
	}
	return s.cfg.Store.Append(ctx, s.cfg.ConversationID, storage.StoredMessage{
		ID:         api.NewMessageID(),
		Role:       api.RoleAssistant,
		Content:    sc.Content,
		Thinking:   sc.Thinking,
		Signature:  sc.Signature,
		Citations:  sc.Citations,
		ToolCalls:  sc.ToolCalls,
		Usage:      sc.Usage,
		Moderation: &mod,
		LogID:      sc.LogID,
		Mode:       s.cfg.Mode,
		Timestamp:  time.Now().UTC(),
	})
}

// invokeTools re-emits each finalized call's framing, runs the calls
// through the executor, and emits per-tool response events.
func (s *PostProcessingStage) invokeTools(ctx context.Context, sc *Context, log *slog.Logger) ([]byte, error) {
	var out []byte
	for _, call := range sc.ToolCalls {
		out = append(out, api.EncodeFrame(api.Event{
			Type:       api.EventToolUseStart,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
		})...)
		out = append(out, api.EncodeFrame(api.Event{
			Type:       api.EventToolUseDelta,
			ToolCallID: call.ID,
			Arguments:  call.Function.Arguments,
		})...)
		out = append(out, api.EncodeFrame(api.Event{
			Type:       api.EventToolUseStop,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
		})...)
	}

	if s.cfg.Executor == nil {
		return out, nil
	}

	results, err := s.cfg.Executor.Invoke(ctx, sc.CompletionID,
		tools.Payload{Text: sc.Content, Calls: sc.ToolCalls},
		s.cfg.Store,
		tools.RunContext{
			UserID:         s.cfg.UserID,
			ConversationID: s.cfg.ConversationID,
			Platform:       s.cfg.Mode,
		})
	if err != nil {
		log.Error("tool invocation failed", "error", err)
		return out, err
	}

	for _, r := range results {
		out = append(out, api.EncodeFrame(api.Event{
			Type:       api.EventToolResponseStart,
			ToolCallID: r.CallID,
			ToolName:   r.Name,
		})...)

		payload, merr := json.Marshal(r.Output)
		if merr != nil {
			payload = []byte(`""`)
		}
		typ := api.EventToolResponse
		if r.IsError {
			typ = api.EventToolError
		}
		out = append(out, api.EncodeFrame(api.Event{
			Type:       typ,
			ToolCallID: r.CallID,
			ToolName:   r.Name,
			Result:     payload,
		})...)

		out = append(out, api.EncodeFrame(api.Event{
			Type:       api.EventToolResponseStop,
			ToolCallID: r.CallID,
			ToolName:   r.Name,
		})...)
	}
	return out, nil
}
