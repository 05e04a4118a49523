package api

import (
	"strings"

	"github.com/google/uuid"
)

const (
	completionIDPrefix = "chat_"
	messageIDPrefix    = "msg_"
	toolCallIDPrefix   = "call_"
)

// NewCompletionID generates a new completion identifier with the "chat_"
// prefix. The identifier doubles as the log id recorded with the persisted
// assistant message.
func NewCompletionID() string {
	return completionIDPrefix + compactUUID()
}

// NewMessageID generates a new stored-message identifier.
func NewMessageID() string {
	return messageIDPrefix + compactUUID()
}

// NewToolCallID generates an identifier for synthetic tool calls created
// by the gateway itself (memory capture events, index-keyed dialects that
// omit ids).
func NewToolCallID() string {
	return toolCallIDPrefix + compactUUID()
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
