// Package backend translates the canonical chat request into each model
// backend's idiosyncratic request schema. Each dialect is a Normalizer
// variant selected by ID; adding a backend means adding a constant, a file,
// and a case in ForID.
package backend

import (
	"context"
	"fmt"

	"github.com/unichat-ai/unichat/pkg/api"
	"github.com/unichat-ai/unichat/pkg/models"
	"github.com/unichat-ai/unichat/pkg/objectstore"
)

// ID identifies one backend dialect.
type ID string

const (
	OpenAI    ID = "openai"
	Anthropic ID = "anthropic"
	Google    ID = "google"
	WorkersAI ID = "workersai"
)

// Options carries caller-supplied normalization inputs that are not part
// of the request itself.
type Options struct {
	// EnabledTools is the allow-list applied to the request's tool
	// declarations. A nil list permits every declared tool; an empty
	// non-nil list permits none.
	EnabledTools []string

	// Objects resolves image references for backends with a prompt-style
	// image contract. Only the vision branch reads it.
	Objects objectstore.ObjectStore
}

// Normalizer converts a canonical request into one backend's request body.
//
// Normalize is pure: it never mutates the request and performs no I/O.
// The returned map is fresh per call and safe for the caller to modify.
type Normalizer interface {
	ID() ID
	Normalize(req *api.ChatRequest, caps models.Capabilities, opts Options) (map[string]any, error)
}

// ImageRequester is the optional special request mode for backends whose
// image/speech models use a structurally different prompt contract.
// ImageRequest returns (nil, nil) when the message shape disagrees with
// the backend's image-prompt convention; callers must branch on the nil
// result rather than treat it as an error.
type ImageRequester interface {
	ImageRequest(ctx context.Context, req *api.ChatRequest, caps models.Capabilities, opts Options) (*ImagePrompt, error)
}

// ImagePrompt is the prompt-style output mode: a single text prompt plus
// an optional raw image payload.
type ImagePrompt struct {
	Prompt string `json:"prompt"`
	Image  []byte `json:"image,omitempty"`
}

// ForID returns the Normalizer for the given backend id. The switch is
// exhaustive over the declared constants; an unknown id is a caller bug
// surfaced as an error rather than a silent default.
func ForID(id ID) (Normalizer, error) {
	switch id {
	case OpenAI:
		return openaiNormalizer{}, nil
	case Anthropic:
		return anthropicNormalizer{}, nil
	case Google:
		return googleNormalizer{}, nil
	case WorkersAI:
		return workersaiNormalizer{}, nil
	default:
		return nil, fmt.Errorf("unknown backend id %q", id)
	}
}

// Normalize is the package-level convenience wrapper: it resolves the
// dialect for id and applies it.
func Normalize(req *api.ChatRequest, id ID, caps models.Capabilities, opts Options) (map[string]any, error) {
	n, err := ForID(id)
	if err != nil {
		return nil, err
	}
	return n.Normalize(req, caps, opts)
}
