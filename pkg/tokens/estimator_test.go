package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountPlainText(t *testing.T) {
	e := NewEstimator()

	assert.Equal(t, 0, e.Count(""))

	// Whatever the encoding yields, a short sentence is a handful of
	// tokens, never zero and never one per byte.
	n := e.Count("The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, n, 4)
	assert.Less(t, n, 20)
}

func TestCountIsStable(t *testing.T) {
	e := NewEstimator()
	text := "streaming token accounting"
	assert.Equal(t, e.Count(text), e.Count(text))
}
