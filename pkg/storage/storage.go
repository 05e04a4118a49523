package storage

import (
	"context"
	"errors"
	"time"

	"github.com/unichat-ai/unichat/pkg/api"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrConflict is returned when a message with the given ID already exists.
	ErrConflict = errors.New("message already exists")
)

// StoredMessage is one persisted conversation entry. Assistant messages
// carry the full accumulated completion state: reasoning, signature,
// citations, tool calls, usage, and the moderation verdict.
type StoredMessage struct {
	ID        string          `json:"id"`
	Role      api.MessageRole `json:"role"`
	Content   string          `json:"content"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`

	Citations  []api.Citation        `json:"citations,omitempty"`
	ToolCalls  []api.ToolCall        `json:"tool_calls,omitempty"`
	Usage      *api.Usage            `json:"usage,omitempty"`
	Moderation *api.ModerationResult `json:"moderation,omitempty"`

	LogID     string    `json:"log_id,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationStore persists conversations and their messages.
//
// Implementations must be safe for concurrent use: many completions'
// pipelines append to different conversations at once.
type ConversationStore interface {
	// GetHistory returns a conversation's messages in append order.
	// An unknown conversation yields an empty slice, not an error.
	GetHistory(ctx context.Context, conversationID string) ([]StoredMessage, error)

	// Append adds one message to a conversation, creating the
	// conversation on first write.
	Append(ctx context.Context, conversationID string, msg StoredMessage) error

	// SetMetadata merges the given patch into the conversation's
	// metadata document.
	SetMetadata(ctx context.Context, conversationID string, patch map[string]any) error
}
