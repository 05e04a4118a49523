// Package moderation defines the output-moderation collaborator consumed
// by the post-processing stage. The scoring algorithm itself is external;
// KeywordValidator is a reference implementation for tests and single-node
// deployments.
package moderation

import (
	"context"
	"strings"

	"github.com/unichat-ai/unichat/pkg/api"
)

// Validator scores a completion's visible output.
//
// Callers must treat any error as "not passed": a completion whose
// moderation check failed is recorded as blocked, never silently passed.
type Validator interface {
	ValidateOutput(ctx context.Context, text, userID, completionID string) (api.ModerationResult, error)
}

// KeywordValidator flags output containing any blocklisted term
// (case-insensitive substring match).
type KeywordValidator struct {
	blocklist []string
}

var _ Validator = (*KeywordValidator)(nil)

// NewKeywordValidator creates a validator with the given blocklist.
// Empty terms are dropped.
func NewKeywordValidator(blocklist []string) *KeywordValidator {
	var terms []string
	for _, t := range blocklist {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, strings.ToLower(t))
		}
	}
	return &KeywordValidator{blocklist: terms}
}

// ValidateOutput implements Validator.
func (v *KeywordValidator) ValidateOutput(ctx context.Context, text, userID, completionID string) (api.ModerationResult, error) {
	lowered := strings.ToLower(text)
	for _, term := range v.blocklist {
		if strings.Contains(lowered, term) {
			return api.ModerationResult{
				IsValid:     false,
				BlockedText: term,
				Violations:  []string{"blocklist"},
			}, nil
		}
	}
	return api.ModerationResult{IsValid: true}, nil
}
