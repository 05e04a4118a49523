package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicExtractor(t *testing.T) {
	ctx := context.Background()

	events, err := HeuristicExtractor{}.Extract(ctx,
		"Remember that my dog is called Rex.\nAlso, what time is it?",
		nil, nil, "chat_1", Settings{Enabled: true})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "store_memory", events[0].Type)
	assert.Equal(t, "my dog is called Rex.", events[0].Text)
}

func TestHeuristicExtractorDisabled(t *testing.T) {
	events, err := HeuristicExtractor{}.Extract(context.Background(),
		"remember everything", nil, nil, "chat_1", Settings{Enabled: false})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHeuristicExtractorMaxEvents(t *testing.T) {
	events, err := HeuristicExtractor{}.Extract(context.Background(),
		"remember a\nremember b\nremember c",
		nil, nil, "chat_1", Settings{Enabled: true, MaxEvents: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
