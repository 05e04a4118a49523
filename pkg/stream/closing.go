package stream

import (
	"context"

	"github.com/unichat-ai/unichat/pkg/api"
)

// ClosingStage terminates the canonical stream. Its flush is
// unconditional: the terminal state marker and end-of-stream sentinel
// are emitted exactly once on every path, whether the completion ended
// normally, closed early, or errored in-band.
type ClosingStage struct {
	closed bool
}

var _ Stage = (*ClosingStage)(nil)

// NewClosingStage creates the terminal stage.
func NewClosingStage() *ClosingStage {
	return &ClosingStage{}
}

// Name implements Stage.
func (s *ClosingStage) Name() string { return "closing" }

// Transform implements Stage.
func (s *ClosingStage) Transform(ctx context.Context, sc *Context, chunk []byte) ([]byte, error) {
	return chunk, nil
}

// Flush implements Stage.
func (s *ClosingStage) Flush(ctx context.Context, sc *Context) ([]byte, error) {
	if s.closed {
		return nil, nil
	}
	s.closed = true

	out := api.EncodeFrame(api.Event{Type: api.EventState, State: api.StateDone})
	return append(out, api.DoneFrame...), nil
}
