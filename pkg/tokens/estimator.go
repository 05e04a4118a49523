// Package tokens provides local token estimation for streams whose
// backend never reports usage. Counts are an approximation based on the
// cl100k_base encoding, good enough for quota accounting.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Estimator counts tokens with a lazily initialized tiktoken encoding.
// Safe for concurrent use.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewEstimator creates an Estimator. The encoding is loaded on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Count returns the token count of text. When the encoding cannot be
// loaded it falls back to a bytes/4 approximation so callers never fail
// on accounting.
func (e *Estimator) Count(text string) int {
	e.once.Do(func() {
		e.enc, e.err = tiktoken.GetEncoding(encodingName)
		if e.err != nil {
			e.err = fmt.Errorf("loading %s encoding: %w", encodingName, e.err)
		}
	})
	if e.err != nil || e.enc == nil {
		return len(text) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}
