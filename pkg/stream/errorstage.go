package stream

import (
	"context"
	"log/slog"

	"github.com/unichat-ai/unichat/pkg/api"
)

// ErrorTransformer guards the stage it wraps: a fault on one chunk
// yields an in-band error event instead of aborting the pipeline,
// distinguishing a local formatter bug from a fatal connection fault.
type ErrorTransformer struct {
	logger  *slog.Logger
	inner   Stage
	onFault func(stage string)
}

var _ Stage = (*ErrorTransformer)(nil)

// NewErrorTransformer wraps inner with per-chunk fault isolation.
// onFault, when non-nil, is called with the faulting stage's name each
// time an error is converted to an in-band event.
func NewErrorTransformer(logger *slog.Logger, inner Stage, onFault func(stage string)) *ErrorTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorTransformer{logger: logger, inner: inner, onFault: onFault}
}

// Name implements Stage.
func (s *ErrorTransformer) Name() string { return "error_transformer(" + s.inner.Name() + ")" }

// Transform implements Stage.
func (s *ErrorTransformer) Transform(ctx context.Context, sc *Context, chunk []byte) ([]byte, error) {
	out, err := s.inner.Transform(ctx, sc, chunk)
	if err != nil {
		return s.errorFrame(sc, err), nil
	}
	return out, nil
}

// Flush implements Stage.
func (s *ErrorTransformer) Flush(ctx context.Context, sc *Context) ([]byte, error) {
	out, err := s.inner.Flush(ctx, sc)
	if err != nil {
		return s.errorFrame(sc, err), nil
	}
	return out, nil
}

func (s *ErrorTransformer) errorFrame(sc *Context, err error) []byte {
	s.logger.Error("stream stage fault",
		"completion_id", sc.CompletionID, "stage", s.inner.Name(), "error", err)
	if s.onFault != nil {
		s.onFault(s.inner.Name())
	}
	return api.EncodeFrame(api.Event{
		Type:  api.EventError,
		Error: api.NewServerError("stream processing error"),
	})
}
