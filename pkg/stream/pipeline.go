package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Stage is one unit of the pipeline. Transform runs per upstream chunk;
// Flush runs exactly once when the upstream ends, with or without an
// end-of-stream sentinel. Both may return bytes for the next stage, or
// nil to emit nothing.
type Stage interface {
	Name() string
	Transform(ctx context.Context, sc *Context, chunk []byte) ([]byte, error)
	Flush(ctx context.Context, sc *Context) ([]byte, error)
}

// Pipeline threads upstream bytes through its stages in registration
// order and writes the result downstream. One pipeline serves exactly
// one completion.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// NewPipeline creates an empty pipeline.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger}
}

// Add appends a stage and returns the pipeline for chaining.
func (p *Pipeline) Add(s Stage) *Pipeline {
	p.stages = append(p.stages, s)
	return p
}

// Run consumes upstream until it ends, threading each chunk through the
// stages and writing the result to downstream. When upstream ends (EOF,
// read error, or context cancellation) every stage's Flush runs in
// order, each flush output flowing through the stages after it, so
// early disconnects still produce a terminated canonical stream.
//
// A stage returning an error from Transform aborts the run: partial
// output may already be in flight, so there is no rollback. Flush
// errors are logged and skipped so the terminal stage always runs. The
// populated Context is returned for the caller's bookkeeping.
func (p *Pipeline) Run(ctx context.Context, sc *Context, upstream io.Reader, downstream io.Writer) (*Context, error) {
	if sc == nil {
		sc = NewContext("")
	}
	log := p.logger.With("completion_id", sc.CompletionID)

	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			log.Debug("pipeline canceled", "error", ctx.Err())
			break
		}

		n, err := upstream.Read(buf)
		if n > 0 {
			out, terr := p.transform(ctx, sc, 0, buf[:n])
			if terr != nil {
				return sc, terr
			}
			if werr := p.write(downstream, out); werr != nil {
				log.Debug("downstream write failed", "error", werr)
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("upstream read ended early", "error", err)
			}
			break
		}
	}

	for i, stage := range p.stages {
		out, err := stage.Flush(ctx, sc)
		if err != nil {
			log.Error("stage flush failed", "stage", stage.Name(), "error", err)
			continue
		}
		if len(out) > 0 {
			out, err = p.transform(ctx, sc, i+1, out)
			if err != nil {
				log.Error("flush transform failed", "stage", stage.Name(), "error", err)
				continue
			}
		}
		if werr := p.write(downstream, out); werr != nil {
			log.Debug("downstream write failed during flush", "error", werr)
		}
	}

	return sc, nil
}

// transform threads chunk through stages[from:]. A nil intermediate
// result short-circuits: the remaining stages see it at their own flush,
// not as an empty chunk.
func (p *Pipeline) transform(ctx context.Context, sc *Context, from int, chunk []byte) ([]byte, error) {
	out := chunk
	for _, stage := range p.stages[from:] {
		if len(out) == 0 {
			return nil, nil
		}
		var err error
		out, err = stage.Transform(ctx, sc, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Pipeline) write(w io.Writer, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}
