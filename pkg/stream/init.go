package stream

import (
	"context"
	"log/slog"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/usage"
)

// InitStage prepends the initial state marker and the user's quota
// snapshot to the stream, ahead of the first backend chunk. A failing
// limiter lookup degrades to omitting the usage_limits frame.
type InitStage struct {
	logger  *slog.Logger
	limiter usage.Limiter
	userID  string

	emitted bool
}

var _ Stage = (*InitStage)(nil)

// NewInitStage creates the stage. limiter may be nil, in which case no
// usage_limits frame is emitted.
func NewInitStage(logger *slog.Logger, limiter usage.Limiter, userID string) *InitStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &InitStage{logger: logger, limiter: limiter, userID: userID}
}

// Name implements Stage.
func (s *InitStage) Name() string { return "init" }

// Transform implements Stage.
func (s *InitStage) Transform(ctx context.Context, sc *Context, chunk []byte) ([]byte, error) {
	if s.emitted {
		return chunk, nil
	}
	return append(s.initFrames(ctx, sc), chunk...), nil
}

// Flush implements Stage. A stream that ended before any chunk still
// gets its init frames, so the client sees a well-formed sequence.
func (s *InitStage) Flush(ctx context.Context, sc *Context) ([]byte, error) {
	if s.emitted {
		return nil, nil
	}
	return s.initFrames(ctx, sc), nil
}

func (s *InitStage) initFrames(ctx context.Context, sc *Context) []byte {
	s.emitted = true

	out := api.EncodeFrame(api.Event{Type: api.EventState, State: api.StateInit})
	if s.limiter == nil {
		return out
	}

	limits, err := s.limiter.Limits(ctx, s.userID)
	if err != nil {
		s.logger.Warn("usage limit lookup failed",
			"completion_id", sc.CompletionID, "user_id", s.userID, "error", err)
		return out
	}
	return append(out, api.EncodeFrame(api.Event{
		Type:   api.EventUsageLimits,
		Limits: &limits,
	})...)
}
