package stream

import (
	"bytes"
	"log/slog"
)

// maxFrameBuffer bounds the unterminated tail retained between chunks.
// A backend streaming this much without a newline is misbehaving; the
// oldest bytes are dropped rather than growing without limit.
const maxFrameBuffer = 100_000

// frameBuffer holds the backend stream's unterminated tail between
// chunks and splits completed lines off the front.
type frameBuffer struct {
	buf     []byte
	logger  *slog.Logger
	onEvict func(dropped int)
}

func newFrameBuffer(logger *slog.Logger, onEvict func(dropped int)) *frameBuffer {
	return &frameBuffer{logger: logger, onEvict: onEvict}
}

// Append adds chunk to the buffer, evicting the oldest bytes when the
// bound is exceeded. Eviction is best-effort and logged, never fatal.
func (b *frameBuffer) Append(chunk []byte) {
	b.buf = append(b.buf, chunk...)
	if over := len(b.buf) - maxFrameBuffer; over > 0 {
		b.buf = b.buf[over:]
		b.logger.Warn("frame buffer overflow, dropping oldest bytes", "dropped", over)
		if b.onEvict != nil {
			b.onEvict(over)
		}
	}
}

// Lines splits off every completed line, retaining the trailing partial
// line for the next chunk. Returned lines have the terminator and any
// carriage return stripped.
func (b *frameBuffer) Lines() [][]byte {
	var lines [][]byte
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			return lines
		}
		line := bytes.TrimSuffix(b.buf[:i], []byte("\r"))
		lines = append(lines, line)
		b.buf = b.buf[i+1:]
	}
}

// Len reports the buffered tail size.
func (b *frameBuffer) Len() int {
	return len(b.buf)
}
